package db

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pixelbatch/logging"
)

func TestCredentialRepository_EmptyWhenAbsent(t *testing.T) {
	repo := NewCredentialRepository(openTestDatabase(t), nil)

	keys, err := repo.LoadCredentials(context.Background())
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("LoadCredentials() = %v, want empty", keys)
	}
}

func TestCredentialRepository_SaveLoadKeepsOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(openTestDatabase(t), nil)

	if err := repo.SaveCredentials(ctx, []string{" k2 ", "k1", "", "k2", "k3"}); err != nil {
		t.Fatalf("SaveCredentials() error = %v", err)
	}

	got, err := repo.LoadCredentials(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"k2", "k1", "k3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadCredentials() = %v, want %v", got, want)
	}
}

func TestCredentialRepository_SaveEmptyRemoves(t *testing.T) {
	ctx := context.Background()
	database := openTestDatabase(t)
	repo := NewCredentialRepository(database, nil)

	if err := repo.SaveCredentials(ctx, []string{"k1"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveCredentials(ctx, nil); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := database.DB().QueryRow(`SELECT COUNT(*) FROM settings`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("settings rows = %d, want 0", n)
	}
}

func TestCredentialRepository_MalformedIsClearedAndEmpty(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "{{{"},
		{name: "object", raw: `{"a":"b"}`},
		{name: "non-string entry", raw: `["ok", 5]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			database := openTestDatabase(t)
			obsCore, logs := observer.New(zapcore.WarnLevel)
			repo := NewCredentialRepository(database, logging.NewFromZap(zap.New(obsCore)))

			_, err := database.DB().Exec(`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
				CredentialsSettingKey, tt.raw, time.Now().UnixMilli())
			if err != nil {
				t.Fatal(err)
			}

			keys, err := repo.LoadCredentials(ctx)
			if err != nil {
				t.Fatalf("LoadCredentials() error = %v", err)
			}
			if len(keys) != 0 {
				t.Errorf("LoadCredentials() = %v, want empty", keys)
			}
			if logs.FilterMessage("malformed credential data, clearing").Len() != 1 {
				t.Error("expected a warning about malformed data")
			}

			var n int
			if err := database.DB().QueryRow(`SELECT COUNT(*) FROM settings WHERE key = ?`, CredentialsSettingKey).Scan(&n); err != nil {
				t.Fatal(err)
			}
			if n != 0 {
				t.Error("malformed row was not cleared")
			}
		})
	}
}

func TestCredentialRepository_AddRemove(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(openTestDatabase(t), nil)

	for _, k := range []string{"a", " b ", "a", "  "} {
		if _, err := repo.AddCredential(ctx, k); err != nil {
			t.Fatalf("AddCredential(%q) error = %v", k, err)
		}
	}
	got, _ := repo.LoadCredentials(ctx)
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("after adds = %v, want [a b]", got)
	}

	added, err := repo.AddCredential(ctx, "a")
	if err != nil || added {
		t.Errorf("AddCredential(duplicate) = %v, %v; want false, nil", added, err)
	}

	if err := repo.RemoveCredential(ctx, 0); err != nil {
		t.Fatalf("RemoveCredential() error = %v", err)
	}
	got, _ = repo.LoadCredentials(ctx)
	if !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("after remove = %v, want [b]", got)
	}

	if err := repo.RemoveCredential(ctx, 5); !errors.Is(err, ErrCredentialIndex) {
		t.Errorf("RemoveCredential(out of range) error = %v, want ErrCredentialIndex", err)
	}
}

func TestMaskCredential(t *testing.T) {
	tests := map[string]string{
		"AIzaSyABCDEFGH1234": "••••••••1234",
		"abc":                "••••••••abc",
	}
	for in, want := range tests {
		if got := MaskCredential(in); got != want {
			t.Errorf("MaskCredential(%q) = %q, want %q", in, got, want)
		}
	}
}
