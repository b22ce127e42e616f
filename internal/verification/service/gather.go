package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"kycverify/internal/evidence"
	"kycverify/internal/evidence/mrz"
	"kycverify/internal/verification/models"
	id "kycverify/pkg/domain"
)

// Evidence source names used for metrics, spans and error categories.
const (
	sourceStorage    = "storage"
	sourceFront      = "document_front"
	sourceBack       = "document_back"
	sourceFaces      = "face_detection"
	sourceComparison = "face_comparison"
)

type storedImages struct {
	front  evidence.ObjectRef
	back   *evidence.ObjectRef
	selfie evidence.ObjectRef
}

func (i storedImages) documents() models.Documents {
	docs := models.Documents{Front: i.front.Key, Selfie: i.selfie.Key}
	if i.back != nil {
		docs.Back = i.back.Key
	}
	return docs
}

// storeUploads writes the submitted images under verifications/{id}/.
func (s *Service) storeUploads(ctx context.Context, vid id.VerificationID, uploads Uploads) (storedImages, error) {
	var imgs storedImages
	g, gctx := errgroup.WithContext(ctx)

	put := func(kind string, u *Upload, dst *evidence.ObjectRef) {
		g.Go(func() error {
			return s.stage(gctx, sourceStorage, func(ctx context.Context) error {
				ref, err := s.sources.Storage.Put(ctx, objectKey(vid, kind, u.Filename), contentType(u), u.Data)
				if err != nil {
					return evidence.NewSourceError(evidence.ErrorOutage, sourceStorage, "store "+kind, err)
				}
				*dst = ref
				return nil
			})
		})
	}
	put("front", uploads.Front, &imgs.front)
	put("selfie", uploads.Selfie, &imgs.selfie)
	if !uploads.Back.empty() {
		imgs.back = &evidence.ObjectRef{}
		put("back", uploads.Back, imgs.back)
	}
	if err := g.Wait(); err != nil {
		return storedImages{}, err
	}
	return imgs, nil
}

func objectKey(vid id.VerificationID, kind, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("verifications/%s/%s%s", vid, kind, ext)
}

func contentType(u *Upload) string {
	if u.ContentType != "" {
		return u.ContentType
	}
	return "application/octet-stream"
}

// gather calls every evidence source in parallel. Each call gets its own
// deadline and any failure aborts the rest.
func (s *Service) gather(ctx context.Context, imgs storedImages) (evidence.Bundle, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*s.stageTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	var (
		front, back *evidence.Extraction
		faces       []evidence.FaceQuality
		comparison  evidence.FaceComparison
	)

	g.Go(func() error {
		return s.stage(gctx, sourceFront, func(ctx context.Context) error {
			ex, err := s.sources.Documents.Extract(ctx, imgs.front)
			front = &ex
			return err
		})
	})
	if imgs.back != nil {
		g.Go(func() error {
			return s.stage(gctx, sourceBack, func(ctx context.Context) error {
				ex, err := s.sources.Documents.Extract(ctx, *imgs.back)
				back = &ex
				return err
			})
		})
	}
	g.Go(func() error {
		return s.stage(gctx, sourceFaces, func(ctx context.Context) error {
			var err error
			faces, err = s.sources.Faces.Detect(ctx, imgs.selfie)
			return err
		})
	})
	g.Go(func() error {
		return s.stage(gctx, sourceComparison, func(ctx context.Context) error {
			var err error
			comparison, err = s.sources.Comparer.Compare(ctx, imgs.front, imgs.selfie, s.faceMatchThreshold)
			return err
		})
	})

	if err := g.Wait(); err != nil {
		return evidence.Bundle{}, err
	}

	bundle := evidence.Bundle{Faces: faces, Comparison: &comparison}
	for _, ex := range []*evidence.Extraction{front, back} {
		if ex == nil {
			continue
		}
		bundle.Fields = append(bundle.Fields, ex.Fields...)
		if bundle.MRZ == nil {
			bundle.MRZ = mrzOf(*ex)
		}
	}
	return bundle, nil
}

// mrzOf prefers a dedicated zone and falls back to scanning free text lines.
func mrzOf(ex evidence.Extraction) *evidence.MRZBlock {
	if ex.MRZ != nil && !ex.MRZ.Empty() {
		return ex.MRZ
	}
	if lines := mrz.FindLines(ex.Lines); len(lines) > 0 {
		return &evidence.MRZBlock{Lines: lines}
	}
	return nil
}

// stage runs one evidence call under its own deadline. The call is not
// awaited past the deadline, so an adapter that ignores ctx cannot stall the
// pipeline; a panic inside fn becomes an internal SourceError.
func (s *Service) stage(ctx context.Context, source string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "evidence."+source)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evidence.NewSourceError(evidence.ErrorInternal, source, "panic", fmt.Errorf("%v", r))
			}
		}()
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = evidence.NewSourceError(evidence.ErrorTimeout, source, "deadline exceeded", ctx.Err())
	}
	s.decisionMetrics.ObserveEvidenceLatency(source, time.Since(start))
	if err == nil {
		return nil
	}

	category := evidence.CategoryOf(err)
	span.SetAttributes(attribute.String("evidence.error_category", string(category)))
	span.SetStatus(codes.Error, err.Error())
	var se *evidence.SourceError
	if errors.As(err, &se) {
		return err
	}
	return evidence.NewSourceError(category, source, "evidence call failed", err)
}
