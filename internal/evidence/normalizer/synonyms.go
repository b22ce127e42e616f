package normalizer

import "strings"

// Canonical identity field tags.
const (
	FieldFirstName      = "FIRST_NAME"
	FieldLastName       = "LAST_NAME"
	FieldDateOfBirth    = "DATE_OF_BIRTH"
	FieldDocumentNumber = "DOCUMENT_NUMBER"
	FieldNationality    = "NATIONALITY"
)

// synonyms maps extractor labels (English, Kazakh and Russian ID layouts) to
// canonical tags. Labels outside the canonical set are kept so they can be
// recognized but never populate identity fields.
var synonyms = map[string]string{
	"FIRST_NAME":      FieldFirstName,
	"LAST_NAME":       FieldLastName,
	"DATE_OF_BIRTH":   FieldDateOfBirth,
	"DOCUMENT_NUMBER": FieldDocumentNumber,
	"NATIONALITY":     FieldNationality,

	"NAME":            FieldFirstName,
	"GIVEN NAME":      FieldFirstName,
	"GIVEN NAMES":     FieldFirstName,
	"SURNAME":         FieldLastName,
	"FAMILY NAME":     FieldLastName,
	"DATE OF BIRTH":   FieldDateOfBirth,
	"DOB":             FieldDateOfBirth,
	"BIRTH DATE":      FieldDateOfBirth,
	"ID NUMBER":       FieldDocumentNumber,
	"ID NO":           FieldDocumentNumber,
	"DOCUMENT NO":     FieldDocumentNumber,
	"DOCUMENT NUMBER": FieldDocumentNumber,
	"PASSPORT NO":     FieldDocumentNumber,
	"LICENSE NUMBER":  FieldDocumentNumber,
	"CITIZEN":         FieldNationality,
	"CITIZENSHIP":     FieldNationality,

	"АТЫ/ИМЯ":           FieldFirstName,
	"ИМЯ":               FieldFirstName,
	"ИМЯ / NAME":        FieldFirstName,
	"ТЕГІ/ФАМИЛИЯ":      FieldLastName,
	"ФАМИЛИЯ":           FieldLastName,
	"ФАМИЛИЯ / SURNAME": FieldLastName,
	"ТУҒАН КҮНІ/ДАТА РОЖДЕНИЯ":      FieldDateOfBirth,
	"ТУРАН КҮНӀ/ДАТА РОЖДЕНИЯ":      FieldDateOfBirth,
	"ДАТА РОЖДЕНИЯ":                 FieldDateOfBirth,
	"ДАТА РОЖДЕНИЯ / DATE OF BIRTH": FieldDateOfBirth,
	"ЖСН / ИИН":                     FieldDocumentNumber,
	"ИИН":                           FieldDocumentNumber,
	"ЖСН":                           FieldDocumentNumber,
	"НОМЕР ДОКУМЕНТА":               FieldDocumentNumber,
	"АЗАМАТТЫҒЫ/ГРАЖДАНСТВО":        FieldNationality,
	"ГРАЖДАНСТВО":                   FieldNationality,

	"MIDDLE NAME":             "MIDDLE_NAME",
	"ОТЧЕСТВО":                "MIDDLE_NAME",
	"ОТЧЕСТВО / PATRONYMIC":   "MIDDLE_NAME",
	"ӘКЕСІНІҢ АТЫ / ОТЧЕСТВО": "MIDDLE_NAME",
	"SEX":            "SEX",
	"GENDER":         "SEX",
	"ПОЛ":            "SEX",
	"ЖЫНЫСЫ/ПОЛ":     "SEX",
	"EXPIRY DATE":    "EXPIRATION_DATE",
	"EXPIRATION":     "EXPIRATION_DATE",
	"VALID UNTIL":    "EXPIRATION_DATE",
	"PLACE OF BIRTH": "PLACE_OF_BIRTH",
	"МЕСТО РОЖДЕНИЯ": "PLACE_OF_BIRTH",
	"ADDRESS":        "ADDRESS",
}

// CanonicalTag maps an extractor label onto the canonical tag set. Unknown
// labels are returned upper-cased with whitespace collapsed.
func CanonicalTag(label string) string {
	key := strings.Join(strings.Fields(strings.ToUpper(strings.TrimSpace(label))), " ")
	key = strings.TrimSpace(strings.TrimSuffix(key, ":"))
	if tag, ok := synonyms[key]; ok {
		return tag
	}
	return key
}

func isCanonical(tag string) bool {
	switch tag {
	case FieldFirstName, FieldLastName, FieldDateOfBirth, FieldDocumentNumber, FieldNationality:
		return true
	}
	return false
}
