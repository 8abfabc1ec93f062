package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStepUpdateClosedUnion(t *testing.T) {
	u, err := DecodeStepUpdate("classification", []byte(`{"classification":"solo","confirmed":true}`))
	require.NoError(t, err)
	cu, ok := u.(ClassificationUpdate)
	require.True(t, ok)
	assert.Equal(t, ClassificationSolo, cu.Classification)
	assert.True(t, cu.Confirmed)
	assert.Equal(t, StepClassification, u.Step())
}

func TestDecodeStepUpdateRejectsUnknownName(t *testing.T) {
	_, err := DecodeStepUpdate("referral", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown update")
}

func TestDecodeStepUpdateRejectsUnknownFields(t *testing.T) {
	_, err := DecodeStepUpdate("contact", []byte(`{"discord_handle":"x","phone":"555-1234"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phone")
}

func TestDecodeStepUpdateAllNames(t *testing.T) {
	cases := map[string]Step{
		"classification": StepClassification,
		"services":       StepServices,
		"games":          StepGames,
		"experience":     StepExperience,
		"evidence":       StepExperience,
		"contact":        StepContact,
		"personal":       StepPersonal,
		"community":      StepCommunityJoin,
		"payment":        StepPayment,
	}
	for name, step := range cases {
		u, err := DecodeStepUpdate(name, []byte(`{}`))
		require.NoError(t, err, name)
		assert.Equal(t, step, u.Step(), name)
	}
}

func TestClassificationUpdateValidation(t *testing.T) {
	assert.NoError(t, ClassificationUpdate{Classification: ClassificationReseller}.Validate())
	assert.Error(t, ClassificationUpdate{Classification: "syndicate"}.Validate())
}

func TestServicesUpdateValidation(t *testing.T) {
	assert.NoError(t, ServicesUpdate{Services: []string{"boosting", "coaching"}}.Validate())
	assert.Error(t, ServicesUpdate{Services: []string{"money-laundering"}}.Validate())
}

func TestGamesUpdateValidation(t *testing.T) {
	assert.NoError(t, GamesUpdate{Games: []string{"Dota 2"}}.Validate())
	assert.Error(t, GamesUpdate{Games: []string{"Tic Tac Toe"}}.Validate())
}

func TestEvidenceUpdateValidation(t *testing.T) {
	files := make([]EvidenceFile, MaxEvidenceFiles)
	for i := range files {
		files[i] = EvidenceFile{StorageRef: "123/proof.png", DisplayName: "proof.png", ByteSize: 100}
	}
	assert.NoError(t, EvidenceUpdate{Files: files}.Validate())

	over := append(files, EvidenceFile{StorageRef: "123/extra.png"})
	assert.Error(t, EvidenceUpdate{Files: over}.Validate())

	assert.Error(t, EvidenceUpdate{Files: []EvidenceFile{{DisplayName: "no-ref.png"}}}.Validate())
}

func TestPersonalUpdateValidation(t *testing.T) {
	valid := PersonalUpdate{FullName: "Test", DateOfBirth: "1999-04-12", Country: "US", Languages: []string{"English"}}
	assert.NoError(t, valid.Validate())

	assert.Error(t, PersonalUpdate{DateOfBirth: "12/04/1999"}.Validate())
	assert.Error(t, PersonalUpdate{Country: "XX"}.Validate())
	assert.Error(t, PersonalUpdate{Languages: []string{"Klingon"}}.Validate())
}

func TestExperienceUpdateNormalizesProfiles(t *testing.T) {
	r := NewApplicationRecord()
	ExperienceUpdate{
		Experience:          "years of boosting",
		MarketplaceProfiles: MarketplaceProfiles{Funpay: "funpay.com/users/1"},
	}.Apply(r)

	assert.Equal(t, "https://funpay.com/users/1", r.MarketplaceProfiles.Funpay)
}
