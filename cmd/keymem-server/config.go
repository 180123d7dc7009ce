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

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"
)

// fileConfig is the optional HuJSON config file shape. Every field is a
// pointer so absent keys leave the flag default (or an explicitly set
// flag) in place. HuJSON allows comments and trailing commas, which makes
// the file pleasant to keep in version control.
type fileConfig struct {
	Slots             *int    `json:"slots"`
	ClockInterval     *string `json:"clock_interval"`
	SnapshotThreshold *uint64 `json:"snapshot_threshold"`
	SnapshotInterval  *string `json:"snapshot_interval"`
	PersistAdapter    *string `json:"persist_adapter"`
	RedisAddr         *string `json:"redis_addr"`
	RedisMarkerTTL    *string `json:"redis_marker_ttl"`
	HTTPAddr          *string `json:"http_addr"`
	Metrics           *bool   `json:"metrics"`
	MetricsAddr       *string `json:"metrics_addr"`
}

// applyConfigFile loads path and overwrites every flag the user did not
// set explicitly on the command line. Precedence: explicit flag > file >
// flag default.
func applyConfigFile(flags *pflag.FlagSet, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	std, err := hujson.Standardize(raw)
	if err != nil {
		return fmt.Errorf("standardize config: %w", err)
	}
	var fc fileConfig
	if err := json.Unmarshal(std, &fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	set := func(name, value string) error {
		if flags.Changed(name) {
			return nil
		}
		return flags.Set(name, value)
	}

	if fc.Slots != nil {
		if err := set("slots", fmt.Sprintf("%d", *fc.Slots)); err != nil {
			return err
		}
	}
	if fc.ClockInterval != nil {
		if _, err := time.ParseDuration(*fc.ClockInterval); err != nil {
			return fmt.Errorf("clock_interval: %w", err)
		}
		if err := set("clock_interval", *fc.ClockInterval); err != nil {
			return err
		}
	}
	if fc.SnapshotThreshold != nil {
		if err := set("snapshot_threshold", fmt.Sprintf("%d", *fc.SnapshotThreshold)); err != nil {
			return err
		}
	}
	if fc.SnapshotInterval != nil {
		if _, err := time.ParseDuration(*fc.SnapshotInterval); err != nil {
			return fmt.Errorf("snapshot_interval: %w", err)
		}
		if err := set("snapshot_interval", *fc.SnapshotInterval); err != nil {
			return err
		}
	}
	if fc.PersistAdapter != nil {
		if err := set("persist_adapter", *fc.PersistAdapter); err != nil {
			return err
		}
	}
	if fc.RedisAddr != nil {
		if err := set("redis_addr", *fc.RedisAddr); err != nil {
			return err
		}
	}
	if fc.RedisMarkerTTL != nil {
		if _, err := time.ParseDuration(*fc.RedisMarkerTTL); err != nil {
			return fmt.Errorf("redis_marker_ttl: %w", err)
		}
		if err := set("redis_marker_ttl", *fc.RedisMarkerTTL); err != nil {
			return err
		}
	}
	if fc.HTTPAddr != nil {
		if err := set("http_addr", *fc.HTTPAddr); err != nil {
			return err
		}
	}
	if fc.Metrics != nil {
		if err := set("metrics", fmt.Sprintf("%t", *fc.Metrics)); err != nil {
			return err
		}
	}
	if fc.MetricsAddr != nil {
		if err := set("metrics_addr", *fc.MetricsAddr); err != nil {
			return err
		}
	}
	return nil
}
