package db

import (
	"context"
	"errors"
	"testing"

	"DropFM/core/auth"
	"DropFM/logger"
	"DropFM/model"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeAdminStore struct {
	users    []*model.User
	countErr error
}

func (f *fakeAdminStore) CountUsers(context.Context) (int64, error) {
	return int64(len(f.users)), f.countErr
}

func (f *fakeAdminStore) CreateUser(_ context.Context, u *model.User) (int64, error) {
	u.ID = int64(len(f.users) + 1)
	f.users = append(f.users, u)
	return u.ID, nil
}

func TestEnsureDefaultAdminCreatesOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	defer logger.ReplaceForTests(zap.New(core))()

	store := &fakeAdminStore{}
	created, err := EnsureDefaultAdmin(context.Background(), store)
	if err != nil || !created {
		t.Fatalf("first run: created=%v err=%v", created, err)
	}
	if len(store.users) != 1 || !store.users[0].IsAdmin || store.users[0].Username != "admin" {
		t.Fatalf("unexpected users: %+v", store.users)
	}
	if !auth.CheckPasswordHash("admin", store.users[0].PasswordHash) {
		t.Fatal("stored hash does not match the default password")
	}
	if logs.Len() == 0 {
		t.Fatal("expected a warning about the default credentials")
	}

	created, err = EnsureDefaultAdmin(context.Background(), store)
	if err != nil || created {
		t.Fatalf("second run: created=%v err=%v", created, err)
	}
	if len(store.users) != 1 {
		t.Fatalf("bootstrap was not idempotent: %d users", len(store.users))
	}
}

func TestEnsureDefaultAdminPropagatesStoreError(t *testing.T) {
	store := &fakeAdminStore{countErr: errors.New("db down")}
	if _, err := EnsureDefaultAdmin(context.Background(), store); err == nil {
		t.Fatal("expected error")
	}
}
