// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: August 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keymem"
	"keymem/internal/keyserver/core"
)

// newTestServer returns an httptest server over a scrubbed service.
func newTestServer(t *testing.T) (*httptest.Server, *core.Service) {
	t.Helper()
	svc := core.NewService(keymem.Options{Slots: 16}, time.Millisecond)
	svc.Start()
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	NewServer(svc).RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, svc
}

func putSlot(t *testing.T, ts *httptest.Server, req slotRequest) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq, err := http.NewRequest(http.MethodPut, ts.URL+"/slot", bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

// TestServer_LookupHit programs a slot over the API and looks it up.
func TestServer_LookupHit(t *testing.T) {
	ts, _ := newTestServer(t)

	putSlot(t, ts, slotRequest{
		Slot:    2,
		KeyID:   "0xc01df337",
		Key:     []string{"0x1", "0x2", "0x3", "0x4", "0x5"},
		DomainA: true,
	})

	resp, err := http.Get(ts.URL + "/lookup?domain=a&key_id=0xc01df337")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lr lookupResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lr))
	assert.True(t, lr.Found)
	assert.Equal(t, 2, lr.Slot)
	assert.Equal(t, []string{"0x00000001", "0x00000002", "0x00000003", "0x00000004", "0x00000005"}, lr.Words)
}

// TestServer_LookupMiss checks the defined not-found outcome maps to 404
// with zero key words.
func TestServer_LookupMiss(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/lookup?domain=b&key_id=0xdeadbeef")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var lr lookupResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lr))
	assert.False(t, lr.Found)
	assert.Empty(t, lr.Words)
}

// TestServer_LookupBadRequest covers the malformed-request guards that
// the engine itself does not validate.
func TestServer_LookupBadRequest(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, url := range []string{
		"/lookup?key_id=0x1",          // no domain
		"/lookup?domain=ab&key_id=1",  // not one-hot
		"/lookup?domain=a",            // missing id
		"/lookup?domain=a&key_id=zzz", // unparsable id
	} {
		resp, err := http.Get(ts.URL + url)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, url)
	}
}

// TestServer_SlotRoundTrip programs a slot and reads it back through the
// mirror-load endpoint, counter halves included.
func TestServer_SlotRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)

	putSlot(t, ts, slotRequest{
		Slot:      7,
		KeyID:     "0xee000002",
		CounterHi: 1,
		CounterLo: 0xfffffffe,
		Key:       []string{"0xa", "0xb", "0xc", "0xd", "0xe"},
		DomainB:   true,
	})

	resp, err := http.Get(ts.URL + "/slot?index=7")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sr slotResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sr))
	assert.Equal(t, "0xee000002", sr.KeyID)
	assert.Equal(t, uint32(1), sr.CounterHi)
	assert.Equal(t, uint32(0xfffffffe), sr.CounterLo)
	assert.False(t, sr.DomainA)
	assert.True(t, sr.DomainB)
	assert.Equal(t, "0x0000000e", sr.Key[4])
}

// TestServer_ValidityInvalidation clears a slot's validity over the API
// and expects lookups to miss while the content stays readable host-side.
func TestServer_ValidityInvalidation(t *testing.T) {
	ts, _ := newTestServer(t)

	putSlot(t, ts, slotRequest{
		Slot:    4,
		KeyID:   "0x51070004",
		Key:     []string{"1", "2", "3", "4", "5"},
		DomainA: true,
	})

	body, _ := json.Marshal(validityRequest{Slot: 4})
	resp, err := http.Post(ts.URL+"/slot/validity", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/lookup?domain=a&key_id=0x51070004")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/slot?index=4")
	require.NoError(t, err)
	defer resp.Body.Close()
	var sr slotResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sr))
	assert.Equal(t, "0x51070004", sr.KeyID)
}

// TestServer_Healthz checks the scrub gate at the health endpoint.
func TestServer_Healthz(t *testing.T) {
	// Unstarted service: still scrubbing.
	svc := core.NewService(keymem.Options{Slots: 8}, time.Millisecond)
	mux := http.NewServeMux()
	NewServer(svc).RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	svc.Start()
	defer svc.Stop()

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
