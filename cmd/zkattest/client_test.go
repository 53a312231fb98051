package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apitypes "github.com/weisyn/zkattest/internal/api/types"
	"github.com/weisyn/zkattest/pkg/types"
)

func TestRESTClient_DecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/proofs/req-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"request_id":"req-1","state":"completed","attempts":2},"requestId":"x"}`))
	}))
	defer srv.Close()

	var snap types.JobSnapshot
	err := newRESTClient(srv.URL, time.Second).do(context.Background(), http.MethodGet, "/proofs/req-1", nil, nil, &snap)
	require.NoError(t, err)
	require.Equal(t, "req-1", snap.RequestID)
	require.Equal(t, types.JobState("completed"), snap.State)
	require.Equal(t, 2, snap.Attempts)
}

func TestRESTClient_ProblemDetailsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apitypes.NewProblemDetails(apitypes.CodeResourceExhausted, apitypes.LayerProofService,
			"服务繁忙", "queue full", http.StatusServiceUnavailable, nil).WriteJSON(w)
	}))
	defer srv.Close()

	err := newRESTClient(srv.URL+"/api/v1", time.Second).do(context.Background(), http.MethodPost, "/proofs", nil, map[string]int{"a": 1}, nil)
	require.ErrorContains(t, err, apitypes.CodeResourceExhausted)
	require.ErrorContains(t, err, "queue full")
}

func TestRESTClient_PlainError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newRESTClient(srv.URL, time.Second).do(context.Background(), http.MethodGet, "/cache/stats", nil, nil, nil)
	require.ErrorContains(t, err, "http 502")
}
