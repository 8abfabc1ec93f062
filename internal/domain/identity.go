package domain

// DiscordIdentity is the profile snapshot obtained from Discord at login.
// It is immutable once issued and replaced wholesale on re-login; the
// Discord ID is the stable correlation key for everything else in the system.
type DiscordIdentity struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	Email         string `json:"email,omitempty"`
}

// Tag returns the legacy username#discriminator display form. Accounts
// migrated to the new username system carry an empty or "0" discriminator.
func (d DiscordIdentity) Tag() string {
	disc := d.Discriminator
	if disc == "" || disc == "0" {
		disc = "0000"
	}
	return d.Username + "#" + disc
}

// AvatarURL returns the CDN URL for the user's avatar, or the default
// embed avatar when none is set.
func (d DiscordIdentity) AvatarURL() string {
	if d.Avatar == "" {
		return "https://cdn.discordapp.com/embed/avatars/0.png"
	}
	return "https://cdn.discordapp.com/avatars/" + d.ID + "/" + d.Avatar + ".png"
}
