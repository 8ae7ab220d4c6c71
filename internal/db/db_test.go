package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestNotFound(t *testing.T) {
	if !errors.Is(notFound(pgx.ErrNoRows), ErrNotFound) {
		t.Error("pgx.ErrNoRows should map to ErrNotFound")
	}
	if !errors.Is(notFound(fmt.Errorf("scan: %w", pgx.ErrNoRows)), ErrNotFound) {
		t.Error("wrapped pgx.ErrNoRows should map to ErrNotFound")
	}
	other := errors.New("conn reset")
	if notFound(other) != other {
		t.Error("other errors should pass through")
	}
	if notFound(nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestValidTable(t *testing.T) {
	tests := []struct {
		table   AssetTable
		wantErr bool
	}{
		{TableAvatars, false},
		{TableRecordings, false},
		{TableAudios, false},
		{AssetTable("coaches"), true},
		{AssetTable("avatars; DROP TABLE avatars"), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.table), func(t *testing.T) {
			err := validTable(tt.table)
			if (err != nil) != tt.wantErr {
				t.Errorf("validTable(%q) error = %v, wantErr %v", tt.table, err, tt.wantErr)
			}
		})
	}
}

func TestMarkUploaded_RejectsUnknownTable(t *testing.T) {
	q := New(nil)
	_, err := q.MarkUploaded(context.Background(), AssetTable("users"), "avatars/originals/x")
	if err == nil || !strings.Contains(err.Error(), "unknown asset table") {
		t.Errorf("MarkUploaded() error = %v", err)
	}
}

func TestMarkProcessed_RejectsUnknownTable(t *testing.T) {
	q := New(nil)
	_, err := q.MarkProcessed(context.Background(), MarkProcessedParams{
		Table:        AssetTable("coaches"),
		OriginalKey:  "recordings/originals/x",
		ProcessedKey: "recordings/processed/x.m3u8",
	})
	if err == nil || !strings.Contains(err.Error(), "unknown asset table") {
		t.Errorf("MarkProcessed() error = %v", err)
	}
}

func TestMarkProcessed_SkipsIdenticalRewrite(t *testing.T) {
	query := fmt.Sprintf(markProcessed, TableRecordings)

	for _, want := range []string{
		"UPDATE recordings",
		"AND (processed_key IS DISTINCT FROM $2 OR state <> 'processed')",
		"true AS changed FROM updated",
		"false AS changed FROM recordings",
		"NOT EXISTS (SELECT 1 FROM updated)",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("markProcessed missing %q:\n%s", want, query)
		}
	}
	if strings.Contains(query, "%!") {
		t.Errorf("markProcessed has a bad format verb:\n%s", query)
	}
}

func TestAssetState_Scan(t *testing.T) {
	var s AssetState
	if err := s.Scan([]byte("uploaded")); err != nil || s != AssetStateUploaded {
		t.Errorf("Scan([]byte) = %q, %v", s, err)
	}
	if err := s.Scan("processed"); err != nil || s != AssetStateProcessed {
		t.Errorf("Scan(string) = %q, %v", s, err)
	}
	if err := s.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}
