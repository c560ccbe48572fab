package api

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
	"github.com/tendant/simple-marketplace/pkg/marketplace/imaging"
)

func TestMetrics_CountsRequests(t *testing.T) {
	env := setupAPI(t)

	env.do(t, nil, http.MethodGet, "/api/v1/awards", nil)
	env.do(t, nil, http.MethodGet, "/api/v1/awards", nil)

	assert.Equal(t, 1, testutil.CollectAndCount(env.metrics.requests))
	assert.Equal(t, 1, testutil.CollectAndCount(env.metrics.duration))
}

func TestMetrics_ObserveUpload(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveUpload("s3", marketplace.StoredObject{Key: "a", Size: 100}, imaging.Result{Compressed: true})
	m.ObserveUpload("s3", marketplace.StoredObject{Key: "b", Size: 50}, imaging.Result{Original: true})
	m.ObserveUpload("s3", marketplace.StoredObject{Key: "c", Size: 10}, imaging.Result{})

	assert.Equal(t, float64(3), testutil.ToFloat64(m.uploads.WithLabelValues("s3")))
	assert.Equal(t, float64(160), testutil.ToFloat64(m.uploadBytes.WithLabelValues("s3")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.images.WithLabelValues("compressed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.images.WithLabelValues("original")))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{marketplace.NewValidationError("name", "is required"), http.StatusBadRequest, KindValidation},
		{&marketplace.RecordError{Entity: "award", Op: "get", Err: marketplace.ErrNotFound}, http.StatusNotFound, KindNotFound},
		{marketplace.ErrInvalidTransition, http.StatusBadRequest, KindInvalidTransition},
		{marketplace.ErrNotModerated, http.StatusBadRequest, KindInvalidTransition},
		{marketplace.ErrForbidden, http.StatusForbidden, KindForbidden},
		{marketplace.ErrDuplicate, http.StatusConflict, KindConflict},
		{marketplace.ErrInvalidCSV, http.StatusBadRequest, KindInvalidCSV},
		{marketplace.ErrObjectTooLarge, http.StatusRequestEntityTooLarge, KindTooLarge},
		{&marketplace.StorageError{Backend: "s3", Op: "upload", Err: assert.AnError}, http.StatusBadGateway, KindStorage},
		{marketplace.ErrDeliveryFailed, http.StatusBadGateway, KindDelivery},
		{assert.AnError, http.StatusInternalServerError, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			status, body := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, body.Kind)
			if status >= http.StatusInternalServerError {
				assert.NotContains(t, body.Message, assert.AnError.Error())
			}
		})
	}
}
