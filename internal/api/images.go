package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/mcdoradca/PIM/internal/domain"
	"github.com/mcdoradca/PIM/internal/normalize"
	"github.com/mcdoradca/PIM/internal/pipeline"
	"github.com/mcdoradca/PIM/internal/storage"
)

const (
	HeaderSourceSize = "X-PIM-Source-Size"
	HeaderFittedSize = "X-PIM-Fitted-Size"
)

type qualityCheckResponse struct {
	Accepted      bool           `json:"accepted"`
	Format        string         `json:"format"`
	MIME          string         `json:"mime"`
	Size          normalize.Size `json:"size"`
	MinResolution normalize.Size `json:"min_resolution"`
}

// handleQualityCheck reads only the image header and applies the minimum
// resolution gate.
func (s *Server) handleQualityCheck(w http.ResponseWriter, r *http.Request) {
	opts, err := optionsFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw, ok := s.readImageBody(w, r)
	if !ok {
		return
	}

	probe, err := normalize.ProbeImage(raw)
	if err != nil {
		s.logger.WithError(err).Info("quality check on unreadable image")
		writeError(w, http.StatusUnprocessableEntity, "unsupported or corrupt image")
		return
	}

	minResolution := pipeline.SpecFromOptions(s.defaults, opts).MinResolution
	accepted := normalize.ValidateSize(s.logger, probe.Size, minResolution)
	writeJSON(w, http.StatusOK, qualityCheckResponse{
		Accepted:      accepted,
		Format:        probe.Format,
		MIME:          probe.MIME,
		Size:          probe.Size,
		MinResolution: minResolution,
	})
}

// handleNormalize returns the golden record for the uploaded image.
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	opts, err := optionsFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw, ok := s.readImageBody(w, r)
	if !ok {
		return
	}

	spec := pipeline.SpecFromOptions(s.defaults, opts)
	// Unreadable headers fall through to Normalize, which reports them.
	if header, err := normalize.ProbeImage(raw); err == nil {
		if header.Size.Pixels() > s.maxSourcePixels {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("image %s exceeds %d pixels", header.Size, s.maxSourcePixels))
			return
		}
		if opts.EnforceQualityGate && !normalize.ValidateSize(s.logger, header.Size, spec.MinResolution) {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("image %s is below the minimum resolution %s", header.Size, spec.MinResolution))
			return
		}
	}

	result, err := s.normalizer.Normalize(raw, spec)
	switch {
	case errors.Is(err, normalize.ErrInvalidSpec):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	contentID, err := storage.ContentID(result.Data)
	if err != nil {
		s.logger.WithError(err).Error("content id failed")
		writeError(w, http.StatusInternalServerError, "failed to address golden record")
		return
	}

	s.metrics.goldenRecordBytes.Observe(float64(len(result.Data)))
	s.logger.WithFields(logrus.Fields{
		"source": result.Source.Size().String(),
		"mode":   result.Source.Mode.String(),
		"bytes":  len(result.Data),
	}).Info("normalized upload")

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("ETag", strconv.Quote(contentID))
	w.Header().Set(HeaderSourceSize, result.Source.Size().String())
	w.Header().Set(HeaderFittedSize, result.Fitted.String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *Server) readImageBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("image exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return nil, false
	}
	return raw, true
}

// optionsFromQuery maps width, height, quality, force_white, min_width,
// min_height and gate onto per-request overrides.
func optionsFromQuery(q url.Values) (domain.NormalizationOptions, error) {
	var (
		opts domain.NormalizationOptions
		err  error
	)
	ints := []struct {
		key string
		dst *int
	}{
		{"width", &opts.TargetWidth},
		{"height", &opts.TargetHeight},
		{"quality", &opts.Quality},
		{"min_width", &opts.MinWidth},
		{"min_height", &opts.MinHeight},
	}
	for _, p := range ints {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		if *p.dst, err = strconv.Atoi(v); err != nil {
			return domain.NormalizationOptions{}, fmt.Errorf("query parameter %s must be an integer", p.key)
		}
	}
	if v := q.Get("force_white"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return domain.NormalizationOptions{}, errors.New("query parameter force_white must be a boolean")
		}
		opts.ForceWhiteBackground = &b
	}
	if v := q.Get("gate"); v != "" {
		if opts.EnforceQualityGate, err = strconv.ParseBool(v); err != nil {
			return domain.NormalizationOptions{}, errors.New("query parameter gate must be a boolean")
		}
	}
	if err := opts.Validate(); err != nil {
		return domain.NormalizationOptions{}, err
	}
	return opts, nil
}
