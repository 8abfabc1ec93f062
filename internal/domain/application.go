package domain

import (
	"slices"
	"strings"
)

// Classification describes how the applicant operates.
type Classification string

const (
	ClassificationUnset    Classification = ""
	ClassificationSolo     Classification = "solo"
	ClassificationGroup    Classification = "group"
	ClassificationReseller Classification = "reseller"
)

// SubmissionStatus is the lifecycle state of an application record.
type SubmissionStatus string

const (
	StatusDraft     SubmissionStatus = "draft"
	StatusSubmitted SubmissionStatus = "submitted"
)

// EvidenceFile is one uploaded proof-of-work screenshot. Size and MIME
// constraints are enforced at upload time by the evidence store; entries
// recorded here are not re-validated at submit time.
type EvidenceFile struct {
	StorageRef  string `json:"storage_ref"`
	DisplayName string `json:"display_name"`
	ByteSize    int64  `json:"byte_size"`
}

// MarketplaceProfiles holds optional links to the applicant's profiles on
// boosting marketplaces. Values are normalized to carry an https scheme.
type MarketplaceProfiles struct {
	Funpay   string `json:"funpay,omitempty"`
	G2G      string `json:"g2g,omitempty"`
	Eldorado string `json:"eldorado,omitempty"`
	Other    string `json:"other,omitempty"`
}

// Normalized returns a copy with every non-empty value carrying a scheme.
func (m MarketplaceProfiles) Normalized() MarketplaceProfiles {
	return MarketplaceProfiles{
		Funpay:   normalizeProfileURL(m.Funpay),
		G2G:      normalizeProfileURL(m.G2G),
		Eldorado: normalizeProfileURL(m.Eldorado),
		Other:    normalizeProfileURL(m.Other),
	}
}

func normalizeProfileURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

// Contact holds the applicant's messaging handles.
type Contact struct {
	DiscordHandle   string `json:"discord_handle"`
	SecondaryHandle string `json:"secondary_handle,omitempty"`
}

// Personal holds the identification details collected before payout setup.
type Personal struct {
	FullName    string   `json:"full_name"`
	DateOfBirth string   `json:"date_of_birth"`
	Country     string   `json:"country"`
	Languages   []string `json:"languages"`
}

// Payment holds the payout acceptance flag and optional wallet reference.
// Payouts are made exclusively in USDT (TRC-20) or via Binance ID.
type Payment struct {
	AcceptsCryptoPayout bool   `json:"accepts_crypto_payout"`
	WalletRef           string `json:"wallet_ref,omitempty"`
}

// ApplicationRecord is the accumulated-answer aggregate for one applicant.
// For a given Discord ID at most one record exists in the draft store; the
// record is mutated field-by-field as the wizard progresses and no field is
// ever cleared by an unrelated update.
type ApplicationRecord struct {
	Classification          Classification      `json:"classification"`
	ClassificationConfirmed bool                `json:"classification_confirmed"`
	Services                []string            `json:"services"`
	Games                   []string            `json:"games"`
	Experience              string              `json:"experience"`
	EvidenceFiles           []EvidenceFile      `json:"evidence_files"`
	MarketplaceProfiles     MarketplaceProfiles `json:"marketplace_profiles"`
	Contact                 Contact             `json:"contact"`
	Personal                Personal            `json:"personal"`
	JoinedCommunityServer   bool                `json:"joined_community_server"`
	Payment                 Payment             `json:"payment"`
	Identity                DiscordIdentity     `json:"identity"`
	SubmissionStatus        SubmissionStatus    `json:"submission_status"`
	ResubmissionCount       int                 `json:"resubmission_count"`
}

// NewApplicationRecord returns a blank draft record.
func NewApplicationRecord() *ApplicationRecord {
	return &ApplicationRecord{SubmissionStatus: StatusDraft}
}

// Clone returns a deep copy safe to hand to a background save.
func (r *ApplicationRecord) Clone() *ApplicationRecord {
	cp := *r
	cp.Services = slices.Clone(r.Services)
	cp.Games = slices.Clone(r.Games)
	cp.EvidenceFiles = slices.Clone(r.EvidenceFiles)
	cp.Personal.Languages = slices.Clone(r.Personal.Languages)
	return &cp
}

// AbsorbDraft copies every field of a previously saved record into r except
// the identity snapshot: the freshly validated identity always wins over
// whatever the stored draft carried.
func (r *ApplicationRecord) AbsorbDraft(saved ApplicationRecord) {
	identity := r.Identity
	*r = *saved.Clone()
	r.Identity = identity
}

// CanLeave reports whether the record satisfies the gating predicate for
// advancing past the given step. Predicates are re-evaluated on every field
// change, not just on an attempted advance.
func (r *ApplicationRecord) CanLeave(s Step) bool {
	switch s {
	case StepUnauthenticated:
		return r.Identity.ID != ""
	case StepAuthenticated:
		return r.Identity.ID != ""
	case StepClassification:
		return r.Classification != ClassificationUnset && r.ClassificationConfirmed
	case StepServices:
		return len(r.Services) > 0
	case StepGames:
		return len(r.Games) > 0
	case StepExperience:
		return strings.TrimSpace(r.Experience) != ""
	case StepContact:
		return strings.TrimSpace(r.Contact.DiscordHandle) != ""
	case StepPersonal:
		return strings.TrimSpace(r.Personal.FullName) != "" &&
			strings.TrimSpace(r.Personal.DateOfBirth) != "" &&
			strings.TrimSpace(r.Personal.Country) != "" &&
			len(r.Personal.Languages) > 0
	case StepCommunityJoin:
		return r.JoinedCommunityServer
	case StepPayment:
		return r.Payment.AcceptsCryptoPayout
	case StepReview:
		return r.ReadyToSubmit() == nil
	default:
		return false
	}
}

// ReadyToSubmit checks every submit-time invariant and returns a validation
// error naming the first unmet one.
func (r *ApplicationRecord) ReadyToSubmit() error {
	switch {
	case r.Identity.ID == "":
		return ErrUnauthorized("authentication required before submitting")
	case r.Classification == ClassificationUnset || !r.ClassificationConfirmed:
		return ErrValidation("classification must be chosen and confirmed")
	case len(r.Services) == 0:
		return ErrValidation("at least one service must be selected")
	case len(r.Games) == 0:
		return ErrValidation("at least one game must be selected")
	case strings.TrimSpace(r.Experience) == "":
		return ErrValidation("experience description is required")
	case strings.TrimSpace(r.Contact.DiscordHandle) == "":
		return ErrValidation("discord handle is required")
	case strings.TrimSpace(r.Personal.FullName) == "":
		return ErrValidation("full name is required")
	case strings.TrimSpace(r.Personal.DateOfBirth) == "":
		return ErrValidation("date of birth is required")
	case strings.TrimSpace(r.Personal.Country) == "":
		return ErrValidation("country of residence is required")
	case len(r.Personal.Languages) == 0:
		return ErrValidation("at least one language is required")
	case !r.JoinedCommunityServer:
		return ErrValidation("joining the community server is required")
	case !r.Payment.AcceptsCryptoPayout:
		return ErrValidation("the payout method must be accepted")
	}
	return nil
}
