package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/policyimport/internal/config"
	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/JonMunkholm/policyimport/internal/store/gormstore"
	"github.com/JonMunkholm/policyimport/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		store   config.StoreConfig
		want    any
		wantErr bool
	}{
		{name: "memory", store: config.StoreConfig{Driver: "memory"}, want: &memstore.Store{}},
		{name: "memory upper case", store: config.StoreConfig{Driver: "MEMORY"}, want: &memstore.Store{}},
		{name: "sqlite", store: config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "p.db")}, want: &gormstore.Store{}},
		{name: "gorm postgres without URL", store: config.StoreConfig{Driver: "gorm-postgres"}, wantErr: true},
		{name: "unknown", store: config.StoreConfig{Driver: "mongo"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), &config.Config{Store: tt.store})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })

			assert.IsType(t, tt.want, s)
			assert.NoError(t, s.Ping(context.Background()))

			_, err = s.CreatePolicy(context.Background(), core.Policy{PolicyNumber: "P1", Currency: "EUR"})
			assert.NoError(t, err)
		})
	}
}
