package settings_test

import (
	"errors"
	"testing"

	"github.com/glizzus/talkward/internal/settings"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := settings.NewMemoryStore()

	gs := settings.NewGuildSettings("guild-1")
	gs.DefaultProvider = "azure"
	gs.AdminRole = "role-9"
	gs.SetMember("member-1", settings.MemberSettings{
		Voice:             "en-US-JennyNeural",
		Language:          "en-US",
		Gender:            "FEMALE",
		Pitch:             2,
		Speed:             1.2,
		TranslateLanguage: "fr",
	})
	gs.SetMember("member-2", settings.MemberSettings{Muted: true})

	if err := store.Save(t.Context(), gs); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := store.Load(t.Context(), "guild-1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	// UpdatedAt is stamped by Save; everything else must round-trip
	// field for field.
	if diff := cmp.Diff(gs, loaded, cmpopts.IgnoreFields(settings.GuildSettings{}, "UpdatedAt")); diff != "" {
		t.Errorf("settings round-trip mismatch (-want +got):\n%s", diff)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped on save")
	}
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	store := settings.NewMemoryStore()
	if _, err := store.Load(t.Context(), "nope"); !errors.Is(err, settings.ErrNotFound) {
		t.Errorf("Load(missing) error = %v; want ErrNotFound", err)
	}
}

func TestMemberLazyCreation(t *testing.T) {
	gs := settings.NewGuildSettings("guild-1")

	m := gs.Member("member-1")
	if m.Muted || m.Voice != "" {
		t.Errorf("lazily created member settings not empty: %+v", m)
	}
	if _, ok := gs.Members["member-1"]; !ok {
		t.Error("Member did not create a record")
	}

	gs.SetMember("member-1", settings.MemberSettings{Voice: "v1"})
	if got := gs.Member("member-1").Voice; got != "v1" {
		t.Errorf("Member voice = %q; want v1", got)
	}

	gs.ResetMember("member-1")
	if _, ok := gs.Members["member-1"]; ok {
		t.Error("ResetMember left the record in place")
	}
}
