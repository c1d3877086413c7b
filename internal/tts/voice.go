package tts

import "fmt"

// Gender of a synthesized voice. Only these two values are valid in a
// provider's voice catalogue.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// Format is the audio container/codec a provider emits.
type Format string

const (
	FormatPCM       Format = "pcm"
	FormatOgg       Format = "ogg"
	FormatOggVorbis Format = "ogg_vorbis"
	FormatMP3       Format = "mp3"
	FormatOggOpus   Format = "ogg/opus"
	FormatOpus      Format = "opus"
)

var validFormats = map[Format]struct{}{
	FormatPCM:       {},
	FormatOgg:       {},
	FormatOggVorbis: {},
	FormatMP3:       {},
	FormatOggOpus:   {},
	FormatOpus:      {},
}

// Voice is one entry in a provider's catalogue.
type Voice struct {
	// Provider is the shortname of the provider that owns this voice.
	Provider string
	// Language is the BCP-47 language/locale code, e.g. "en-US".
	Language string
	Gender   Gender
	// ID is the provider-specific voice identifier.
	ID string
	// Alias is the human-friendly name members select the voice by.
	Alias string
	// TranslateCode is the ISO-639-1 code used when translating for this voice.
	TranslateCode string
}

// VoiceContractError reports a voice record that violates the structural
// contract. Any such record is a fatal startup error.
type VoiceContractError struct {
	Provider string
	VoiceID  string
	Reason   string
}

func (e *VoiceContractError) Error() string {
	return fmt.Sprintf("provider %s voice %q violates contract: %s", e.Provider, e.VoiceID, e.Reason)
}

var _ error = (*VoiceContractError)(nil)

// CheckVoice validates a single voice record against the catalogue contract.
func CheckVoice(provider string, v Voice) error {
	fail := func(reason string) error {
		return &VoiceContractError{Provider: provider, VoiceID: v.ID, Reason: reason}
	}

	if v.ID == "" {
		return fail("empty voice id")
	}
	if v.Alias == "" {
		return fail("empty alias")
	}
	if v.Provider != provider {
		return fail(fmt.Sprintf("provider mismatch: %q", v.Provider))
	}
	if v.Language == "" {
		return fail("empty language")
	}
	if v.Gender != GenderMale && v.Gender != GenderFemale {
		return fail(fmt.Sprintf("invalid gender: %q", v.Gender))
	}
	if v.TranslateCode == "" {
		return fail("empty translate code")
	}
	return nil
}

// CheckProviderContract validates a provider's structure before it is
// admitted to the registry.
func CheckProviderContract(p Provider) error {
	if p.Shortname() == "" {
		return fmt.Errorf("provider shortname must be set")
	}
	if _, ok := validFormats[p.Format()]; !ok {
		return fmt.Errorf("provider %s declares unknown format %q", p.Shortname(), p.Format())
	}

	voices := p.Voices()
	if len(voices) == 0 {
		return fmt.Errorf("provider %s declares no voices", p.Shortname())
	}
	for _, v := range voices {
		if err := CheckVoice(p.Shortname(), v); err != nil {
			return err
		}
	}
	return nil
}
