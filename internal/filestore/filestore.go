/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"accrual-ledger-go/internal/models"
	"accrual-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Compile-time check: *Service must satisfy store.SnapshotStore.
var _ store.SnapshotStore = (*Service)(nil)

const (
	formatJson = "json"
	formatYaml = "yaml"
)

// jsonDocument is the on-disk snapshot layout. Remainders decode from either
// JSON numbers or quoted strings.
type jsonDocument struct {
	Users    map[string]models.Account `json:"users"`
	Enrolled []string                  `json:"enrolled"`
}

type yamlAccount struct {
	BalanceCents   int64  `yaml:"balanceCents"`
	RemainderCents string `yaml:"remainderCents"`
}

type yamlDocument struct {
	Users    map[string]yamlAccount `yaml:"users"`
	Enrolled []string               `yaml:"enrolled"`
}

// Service persists the ledger snapshot as a single JSON or YAML document.
type Service struct {
	path   string
	format string
}

func NewService(path string) (*Service, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("snapshot path cannot be empty")
	}

	format := formatJson
	switch strings.ToLower(filepath.Ext(trimmed)) {
	case ".yaml", ".yml":
		format = formatYaml
	}

	zap.L().Info("Using snapshot file", zap.String("file", trimmed), zap.String("format", format))
	return &Service{path: trimmed, format: format}, nil
}

func (s *Service) Close() {}

// Load reads the snapshot document. A missing file yields an empty snapshot
// and no error; anything unreadable yields an empty snapshot and ErrStorageRead.
func (s *Service) Load(_ context.Context) (*models.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		zap.L().Info("No snapshot file found, starting with empty ledger", zap.String("file", s.path))
		return models.NewSnapshot(), nil
	}
	if err != nil {
		return models.NewSnapshot(), fmt.Errorf("%w: read %s: %v", store.ErrStorageRead, s.path, err)
	}

	var snapshot *models.Snapshot
	if s.format == formatYaml {
		snapshot, err = decodeYaml(data)
	} else {
		snapshot, err = decodeJson(data)
	}
	if err != nil {
		return models.NewSnapshot(), fmt.Errorf("%w: parse %s: %v", store.ErrStorageRead, s.path, err)
	}

	zap.L().Info("Loaded ledger snapshot",
		zap.String("file", s.path),
		zap.Int("accounts", len(snapshot.Accounts)),
		zap.Int("enrolled", len(snapshot.Enrolled)))
	return snapshot, nil
}

// Save writes the snapshot to a temp file next to the target and renames it
// into place, so the previous document survives any failure.
func (s *Service) Save(_ context.Context, snapshot *models.Snapshot) error {
	var data []byte
	var err error
	if s.format == formatYaml {
		data, err = encodeYaml(snapshot)
	} else {
		data, err = encodeJson(snapshot)
	}
	if err != nil {
		return fmt.Errorf("%w: encode: %v", store.ErrStorageWrite, err)
	}

	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorageWrite, err)
	}

	zap.L().Debug("Saved ledger snapshot", zap.String("file", s.path), zap.Int("bytes", len(data)))
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	cleanup := func() {
		_ = os.Remove(tmp.Name())
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		tmp.Close()
		return fmt.Errorf("sync snapshot file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		cleanup()
		tmp.Close()
		return fmt.Errorf("chmod snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close snapshot file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		cleanup()
		return fmt.Errorf("replace snapshot file: %w", err)
	}
	return nil
}

func encodeJson(snapshot *models.Snapshot) ([]byte, error) {
	doc := jsonDocument{
		Users:    snapshot.Accounts,
		Enrolled: snapshot.EnrolledIds(),
	}
	if doc.Users == nil {
		doc.Users = map[string]models.Account{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decodeJson(data []byte) (*models.Snapshot, error) {
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return buildSnapshot(doc.Users, doc.Enrolled)
}

func encodeYaml(snapshot *models.Snapshot) ([]byte, error) {
	doc := yamlDocument{
		Users:    make(map[string]yamlAccount, len(snapshot.Accounts)),
		Enrolled: snapshot.EnrolledIds(),
	}
	for id, account := range snapshot.Accounts {
		doc.Users[id] = yamlAccount{
			BalanceCents:   account.BalanceUnits,
			RemainderCents: account.Remainder.String(),
		}
	}
	return yaml.Marshal(doc)
}

func decodeYaml(data []byte) (*models.Snapshot, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	accounts := make(map[string]models.Account, len(doc.Users))
	for id, a := range doc.Users {
		remainder := decimal.Zero
		if a.RemainderCents != "" {
			r, err := decimal.NewFromString(a.RemainderCents)
			if err != nil {
				return nil, fmt.Errorf("account %q: invalid remainder %q: %w", id, a.RemainderCents, err)
			}
			remainder = r
		}
		accounts[id] = models.Account{BalanceUnits: a.BalanceCents, Remainder: remainder}
	}
	return buildSnapshot(accounts, doc.Enrolled)
}

// buildSnapshot validates decoded content against the account invariants
func buildSnapshot(accounts map[string]models.Account, enrolled []string) (*models.Snapshot, error) {
	snapshot := models.NewSnapshot()
	for id, account := range accounts {
		if id == "" {
			return nil, fmt.Errorf("account with empty id")
		}
		if account.BalanceUnits < 0 {
			return nil, fmt.Errorf("account %q: negative balance %d", id, account.BalanceUnits)
		}
		if account.Remainder.IsNegative() || account.Remainder.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("account %q: remainder %s outside [0, 1)", id, account.Remainder.String())
		}
		snapshot.Accounts[id] = account
	}
	for _, id := range enrolled {
		if id == "" {
			return nil, fmt.Errorf("enrollment with empty id")
		}
		snapshot.Enrolled[id] = struct{}{}
	}
	return snapshot, nil
}
