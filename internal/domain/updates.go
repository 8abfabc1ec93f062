package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// MaxEvidenceFiles caps the evidence list recorded on an application.
const MaxEvidenceFiles = 5

// StepUpdate is one step's typed partial update. Each implementation
// validates itself against the record schema and applies only its own
// fields, so a malformed partial can never introduce an unexpected field
// and an update can never clobber another step's answers. Applying the
// same update twice is equivalent to applying it once.
type StepUpdate interface {
	Step() Step
	Validate() error
	Apply(r *ApplicationRecord)
}

// ClassificationUpdate records the applicant type and its confirmation
// checkbox. The classification gate requires both.
type ClassificationUpdate struct {
	Classification Classification `json:"classification"`
	Confirmed      bool           `json:"confirmed"`
}

func (u ClassificationUpdate) Step() Step { return StepClassification }

func (u ClassificationUpdate) Validate() error {
	switch u.Classification {
	case ClassificationUnset, ClassificationSolo, ClassificationGroup, ClassificationReseller:
		return nil
	}
	return fmt.Errorf("unknown classification %q", u.Classification)
}

func (u ClassificationUpdate) Apply(r *ApplicationRecord) {
	r.Classification = u.Classification
	r.ClassificationConfirmed = u.Confirmed
}

// ServicesUpdate replaces the selected service set wholesale.
type ServicesUpdate struct {
	Services []string `json:"services"`
}

func (u ServicesUpdate) Step() Step { return StepServices }

func (u ServicesUpdate) Validate() error {
	for _, s := range u.Services {
		if !ValidService(s) {
			return fmt.Errorf("unknown service %q", s)
		}
	}
	return nil
}

func (u ServicesUpdate) Apply(r *ApplicationRecord) {
	r.Services = slices.Clone(u.Services)
}

// GamesUpdate replaces the selected game set wholesale.
type GamesUpdate struct {
	Games []string `json:"games"`
}

func (u GamesUpdate) Step() Step { return StepGames }

func (u GamesUpdate) Validate() error {
	for _, g := range u.Games {
		if !ValidGame(g) {
			return fmt.Errorf("game %q is not in the catalog", g)
		}
	}
	return nil
}

func (u GamesUpdate) Apply(r *ApplicationRecord) {
	r.Games = slices.Clone(u.Games)
}

// ExperienceUpdate records the experience narrative and optional
// marketplace profile links.
type ExperienceUpdate struct {
	Experience          string              `json:"experience"`
	MarketplaceProfiles MarketplaceProfiles `json:"marketplace_profiles"`
}

func (u ExperienceUpdate) Step() Step { return StepExperience }

func (u ExperienceUpdate) Validate() error { return nil }

func (u ExperienceUpdate) Apply(r *ApplicationRecord) {
	r.Experience = u.Experience
	r.MarketplaceProfiles = u.MarketplaceProfiles.Normalized()
}

// EvidenceUpdate replaces the evidence file list wholesale. The list is
// caller-managed: entries come back from the evidence store after upload,
// and removal is expressed by resending the list without the entry.
type EvidenceUpdate struct {
	Files []EvidenceFile `json:"files"`
}

func (u EvidenceUpdate) Step() Step { return StepExperience }

func (u EvidenceUpdate) Validate() error {
	if len(u.Files) > MaxEvidenceFiles {
		return fmt.Errorf("at most %d evidence files are allowed", MaxEvidenceFiles)
	}
	for _, f := range u.Files {
		if f.StorageRef == "" {
			return fmt.Errorf("evidence file %q has no storage reference", f.DisplayName)
		}
	}
	return nil
}

func (u EvidenceUpdate) Apply(r *ApplicationRecord) {
	r.EvidenceFiles = slices.Clone(u.Files)
}

// ContactUpdate records messaging handles.
type ContactUpdate struct {
	DiscordHandle   string `json:"discord_handle"`
	SecondaryHandle string `json:"secondary_handle"`
}

func (u ContactUpdate) Step() Step { return StepContact }

func (u ContactUpdate) Validate() error { return nil }

func (u ContactUpdate) Apply(r *ApplicationRecord) {
	r.Contact = Contact{
		DiscordHandle:   strings.TrimSpace(u.DiscordHandle),
		SecondaryHandle: strings.TrimSpace(u.SecondaryHandle),
	}
}

// PersonalUpdate records identification details.
type PersonalUpdate struct {
	FullName    string   `json:"full_name"`
	DateOfBirth string   `json:"date_of_birth"`
	Country     string   `json:"country"`
	Languages   []string `json:"languages"`
}

func (u PersonalUpdate) Step() Step { return StepPersonal }

func (u PersonalUpdate) Validate() error {
	if u.DateOfBirth != "" {
		if _, err := time.Parse("2006-01-02", u.DateOfBirth); err != nil {
			return fmt.Errorf("date of birth must be YYYY-MM-DD")
		}
	}
	if u.Country != "" && !ValidCountry(u.Country) {
		return fmt.Errorf("unknown country %q", u.Country)
	}
	for _, l := range u.Languages {
		if !ValidLanguage(l) {
			return fmt.Errorf("unknown language %q", l)
		}
	}
	return nil
}

func (u PersonalUpdate) Apply(r *ApplicationRecord) {
	r.Personal = Personal{
		FullName:    strings.TrimSpace(u.FullName),
		DateOfBirth: u.DateOfBirth,
		Country:     u.Country,
		Languages:   slices.Clone(u.Languages),
	}
}

// CommunityUpdate records whether the applicant joined the Discord server.
type CommunityUpdate struct {
	Joined bool `json:"joined"`
}

func (u CommunityUpdate) Step() Step { return StepCommunityJoin }

func (u CommunityUpdate) Validate() error { return nil }

func (u CommunityUpdate) Apply(r *ApplicationRecord) {
	r.JoinedCommunityServer = u.Joined
}

// PaymentUpdate records payout acceptance and the optional wallet reference.
type PaymentUpdate struct {
	AcceptsCryptoPayout bool   `json:"accepts_crypto_payout"`
	WalletRef           string `json:"wallet_ref"`
}

func (u PaymentUpdate) Step() Step { return StepPayment }

func (u PaymentUpdate) Validate() error { return nil }

func (u PaymentUpdate) Apply(r *ApplicationRecord) {
	r.Payment = Payment{
		AcceptsCryptoPayout: u.AcceptsCryptoPayout,
		WalletRef:           strings.TrimSpace(u.WalletRef),
	}
}

// DecodeStepUpdate decodes a named update into its concrete type. The union
// is closed: unknown names and unknown fields are rejected.
func DecodeStepUpdate(name string, data []byte) (StepUpdate, error) {
	var (
		u   StepUpdate
		err error
	)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "classification":
		u, err = decodeInto[ClassificationUpdate](data)
	case "services":
		u, err = decodeInto[ServicesUpdate](data)
	case "games":
		u, err = decodeInto[GamesUpdate](data)
	case "experience":
		u, err = decodeInto[ExperienceUpdate](data)
	case "evidence":
		u, err = decodeInto[EvidenceUpdate](data)
	case "contact":
		u, err = decodeInto[ContactUpdate](data)
	case "personal":
		u, err = decodeInto[PersonalUpdate](data)
	case "community":
		u, err = decodeInto[CommunityUpdate](data)
	case "payment":
		u, err = decodeInto[PaymentUpdate](data)
	default:
		return nil, fmt.Errorf("unknown update %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s update: %w", name, err)
	}
	return u, nil
}

func decodeInto[T StepUpdate](data []byte) (T, error) {
	var u T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	err := dec.Decode(&u)
	return u, err
}
