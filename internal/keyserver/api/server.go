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

// Package api implements the public-facing HTTP server for the key-memory
// service. The lookup endpoint fronts the client lookup port; the slot
// endpoints front the host management port.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"keymem"
	"keymem/internal/keyserver/core"
	"keymem/internal/keyserver/telemetry"
)

// Server handles the HTTP requests for the key-memory service.
type Server struct {
	svc *core.Service
}

// NewServer creates an API server over a configured service.
func NewServer(svc *core.Service) *Server {
	return &Server{svc: svc}
}

// RegisterRoutes sets up the HTTP routes on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/lookup", s.handleLookup)
	mux.HandleFunc("/slot", s.handleSlot)
	mux.HandleFunc("/slot/validity", s.handleValidity)
	mux.HandleFunc("/healthz", s.handleHealthz)
}

// lookupResponse is the JSON shape of a successful lookup.
type lookupResponse struct {
	Found bool     `json:"found"`
	Slot  int      `json:"slot,omitempty"`
	Words []string `json:"words,omitempty"`
}

// handleLookup fronts the client lookup port: one-hot domain selector and
// a 32-bit key id in, five key words out (or 404 on the defined not-found
// outcome).
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	domain, err := parseDomain(r.URL.Query().Get("domain"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := parseWord(r.URL.Query().Get("key_id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("bad key_id: %v", err), http.StatusBadRequest)
		return
	}

	res, err := s.svc.Lookup(domain, id)
	if errors.Is(err, core.ErrNotScrubbed) {
		http.Error(w, "key memory is scrubbing", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	telemetry.ObserveLookup(res.Found, res.Matches, res.Steps)

	if !res.Found {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(lookupResponse{Found: false})
		return
	}

	resp := lookupResponse{Found: true, Slot: res.Slot, Words: make([]string, keymem.KeyWords)}
	for i, word := range res.Words {
		resp.Words[i] = fmt.Sprintf("0x%08x", word)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// slotRequest is the JSON shape for programming a slot wholesale.
type slotRequest struct {
	Slot      uint32   `json:"slot"`
	KeyID     string   `json:"key_id"`
	CounterHi uint32   `json:"counter_hi"`
	CounterLo uint32   `json:"counter_lo"`
	Key       []string `json:"key"`
	DomainA   bool     `json:"domain_a"`
	DomainB   bool     `json:"domain_b"`
}

// slotResponse is the JSON shape of a slot read-back (mirror load).
type slotResponse struct {
	Slot      uint32                  `json:"slot"`
	KeyID     string                  `json:"key_id"`
	CounterHi uint32                  `json:"counter_hi"`
	CounterLo uint32                  `json:"counter_lo"`
	Key       [keymem.KeyWords]string `json:"key"`
	DomainA   bool                    `json:"domain_a"`
	DomainB   bool                    `json:"domain_b"`
}

// handleSlot fronts the host management port: PUT programs the addressed
// slot, GET runs a mirror-load traversal and returns the image.
func (s *Server) handleSlot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		s.handleSlotProgram(w, r)
	case http.MethodGet:
		s.handleSlotRead(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSlotProgram(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("bad body: %v", err), http.StatusBadRequest)
		return
	}
	id, err := parseWord(req.KeyID)
	if err != nil {
		http.Error(w, fmt.Sprintf("bad key_id: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Key) != keymem.KeyWords {
		http.Error(w, fmt.Sprintf("key must have exactly %d words", keymem.KeyWords), http.StatusBadRequest)
		return
	}

	p := core.SlotProgram{
		Slot:    req.Slot,
		KeyID:   id,
		Counter: keymem.Counter{Hi: req.CounterHi, Lo: req.CounterLo},
		DomainA: req.DomainA,
		DomainB: req.DomainB,
	}
	for i, wstr := range req.Key {
		word, err := parseWord(wstr)
		if err != nil {
			http.Error(w, fmt.Sprintf("bad key word %d: %v", i, err), http.StatusBadRequest)
			return
		}
		p.Key[i] = word
	}

	if err := s.svc.ProgramSlot(p); err != nil {
		if errors.Is(err, core.ErrNotScrubbed) {
			http.Error(w, "key memory is scrubbing", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	telemetry.ObserveSlotProgram()
	telemetry.SetValidSlots("a", s.svc.ValidCount(keymem.DomainA))
	telemetry.SetValidSlots("b", s.svc.ValidCount(keymem.DomainB))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSlotRead(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.ParseUint(r.URL.Query().Get("index"), 0, 32)
	if err != nil {
		http.Error(w, fmt.Sprintf("bad index: %v", err), http.StatusBadRequest)
		return
	}

	img, domainA, domainB, err := s.svc.ReadSlot(uint32(idx))
	if errors.Is(err, core.ErrNotScrubbed) {
		http.Error(w, "key memory is scrubbing", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := slotResponse{
		Slot:      uint32(idx),
		KeyID:     fmt.Sprintf("0x%08x", img.KeyID),
		CounterHi: img.Counter.Hi,
		CounterLo: img.Counter.Lo,
		DomainA:   domainA,
		DomainB:   domainB,
	}
	for i, word := range img.Key {
		resp.Key[i] = fmt.Sprintf("0x%08x", word)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// validityRequest rewrites just one slot's validity pair (the lazy
// invalidation path: content stays put, the slot becomes unreachable).
type validityRequest struct {
	Slot    uint32 `json:"slot"`
	DomainA bool   `json:"domain_a"`
	DomainB bool   `json:"domain_b"`
}

func (s *Server) handleValidity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req validityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("bad body: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.svc.SetValidity(req.Slot, req.DomainA, req.DomainB); err != nil {
		if errors.Is(err, core.ErrNotScrubbed) {
			http.Error(w, "key memory is scrubbing", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	telemetry.SetValidSlots("a", s.svc.ValidCount(keymem.DomainA))
	telemetry.SetValidSlots("b", s.svc.ValidCount(keymem.DomainB))
	w.WriteHeader(http.StatusNoContent)
}

// handleHealthz reports 503 until the startup scrub completes, mirroring
// the engine's StartupWait gate at the service boundary.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Scrubbed() {
		http.Error(w, "scrubbing", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// parseDomain maps the one-hot selector names to a Domain. Both-asserted
// or neither-asserted requests are malformed at this boundary; the engine
// itself does not validate them.
func parseDomain(s string) (keymem.Domain, error) {
	switch s {
	case "a":
		return keymem.DomainA, nil
	case "b":
		return keymem.DomainB, nil
	default:
		return 0, fmt.Errorf("domain must be exactly one of %q or %q", "a", "b")
	}
}

// parseWord parses a 32-bit word from decimal or 0x-prefixed hex.
func parseWord(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("missing value")
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// ListenAndServe starts the HTTP server on the specified address. Mains
// that need graceful shutdown should construct their own http.Server and
// use RegisterRoutes instead.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	fmt.Printf("Key memory API server listening on %s\n", addr)
	return httpServer.ListenAndServe()
}
