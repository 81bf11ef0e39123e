package mongo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/googlepaypasses/internal/adapters/mongo"
	"github.com/robertarktes/googlepaypasses/internal/domain"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func newTestDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "mongodb")
	if err != nil {
		t.Fatal(err)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Disconnect(ctx) })
	return client.Database("pretix_test")
}

func TestCatalogRepository(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	repo := mongoadapter.NewCatalogRepository(db, observability.NopLogger())

	id := uuid.New()
	from := time.Date(2026, 11, 20, 19, 0, 0, 0, time.UTC)
	err := repo.SaveEvent(ctx, mongoadapter.EventDoc{
		ID:        id.String(),
		Organizer: mongoadapter.OrganizerDoc{Slug: "org", Name: "Example Org"},
		Slug:      "evt",
		Name:      map[string]string{"en": "Autumn Concert"},
		Locale:    "en",
		Locales:   []string{"en"},
		Currency:  "EUR",
		DateFrom:  &from,
		Wallet:    mongoadapter.WalletSettingsDoc{DataProtectionApproval: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	ev, err := repo.GetEvent(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if ev.OrganizerSlug != "org" || ev.Name["en"] != "Autumn Concert" || !ev.DateFrom.Equal(from) || !ev.Wallet.DataProtectionApproval {
		t.Errorf("unexpected event %+v", ev)
	}

	lat, lon := 52.5, 13.4
	err = repo.UpdateWalletSettings(ctx, id, domain.WalletSettings{DataProtectionApproval: true, Latitude: &lat, Longitude: &lon, LogoURL: "/logo.png"})
	if err != nil {
		t.Fatal(err)
	}
	ev, _ = repo.GetEvent(ctx, id)
	if ev.Wallet.Latitude == nil || *ev.Wallet.Latitude != lat || ev.Wallet.LogoURL != "/logo.png" {
		t.Errorf("settings not stored: %+v", ev.Wallet)
	}

	if ok, err := repo.OrganizerExists(ctx, "org"); err != nil || !ok {
		t.Errorf("expected organizer to exist, got %v %v", ok, err)
	}
	if ok, _ := repo.OrganizerExists(ctx, "nobody"); ok {
		t.Error("unknown organizer reported as existing")
	}
	if _, err := repo.GetEvent(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := repo.UpdateWalletSettings(ctx, uuid.New(), domain.WalletSettings{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditLogger(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	audit := mongoadapter.NewAuditLogger(db, observability.NopLogger())

	for _, action := range []string{"object.created", "object.shredded"} {
		if err := audit.Record(ctx, action, "ISSUER.obj", map[string]interface{}{"position_id": "p1"}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	logs, err := audit.History(ctx, "ISSUER.obj", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 || logs[0].Action != "object.shredded" {
		t.Errorf("unexpected history %+v", logs)
	}
}
