package domain

// ServiceTag is one of the fixed service categories an applicant can offer.
type ServiceTag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ServiceTags is the fixed set of selectable services.
var ServiceTags = []ServiceTag{
	{ID: "boosting", Label: "Boosting Services"},
	{ID: "farming", Label: "Farm & Leveling"},
	{ID: "currency", Label: "In-Game Currency"},
	{ID: "items", Label: "Items Trading"},
	{ID: "coaching", Label: "Game Coaching"},
}

// GameCatalog is the fixed list of games applicants choose from. Selecting
// from it does not limit which games an accepted booster can take orders
// for; the selection only informs application review.
var GameCatalog = []string{
	"Albion Online",
	"Arena Breakout: Infinite",
	"Ashes of Creation",
	"Black Desert Online",
	"Battlefield 2042",
	"Call of Duty: VANGUARD",
	"Clash of Clans",
	"College Football 25",
	"Counter-Strike 2",
	"Diablo 4",
	"Dota 2",
	"Escape from Tarkov",
	"Final Fantasy XIV",
	"Fortnite",
	"League of Legends",
	"Lost Ark",
	"New World",
	"Overwatch 2",
	"Path of Exile",
	"PUBG: BATTLEGROUNDS",
	"Rocket League",
	"Rust",
	"Valorant",
	"World of Warcraft",
}

// Country is an ISO code plus display name.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Countries is the country-of-residence list.
var Countries = []Country{
	{Code: "US", Name: "United States"},
	{Code: "GB", Name: "United Kingdom"},
	{Code: "CA", Name: "Canada"},
	{Code: "AU", Name: "Australia"},
	{Code: "DE", Name: "Germany"},
	{Code: "FR", Name: "France"},
	{Code: "ES", Name: "Spain"},
	{Code: "IT", Name: "Italy"},
	{Code: "RU", Name: "Russia"},
	{Code: "UA", Name: "Ukraine"},
	{Code: "PL", Name: "Poland"},
	{Code: "CN", Name: "China"},
	{Code: "JP", Name: "Japan"},
	{Code: "KR", Name: "South Korea"},
	{Code: "BR", Name: "Brazil"},
	{Code: "IN", Name: "India"},
}

// Languages is the communication-language list.
var Languages = []string{
	"English",
	"Russian",
	"Spanish",
	"French",
	"German",
	"Italian",
	"Portuguese",
	"Chinese",
	"Japanese",
	"Korean",
}

var (
	serviceSet  = indexServices()
	gameSet     = indexStrings(GameCatalog)
	countrySet  = indexCountries()
	languageSet = indexStrings(Languages)
)

func indexServices() map[string]bool {
	m := make(map[string]bool, len(ServiceTags))
	for _, s := range ServiceTags {
		m[s.ID] = true
	}
	return m
}

func indexCountries() map[string]bool {
	m := make(map[string]bool, len(Countries))
	for _, c := range Countries {
		m[c.Code] = true
	}
	return m
}

func indexStrings(list []string) map[string]bool {
	m := make(map[string]bool, len(list))
	for _, s := range list {
		m[s] = true
	}
	return m
}

// ValidService reports whether id names a known service tag.
func ValidService(id string) bool { return serviceSet[id] }

// ValidGame reports whether name is part of the game catalog.
func ValidGame(name string) bool { return gameSet[name] }

// ValidCountry reports whether code names a known country.
func ValidCountry(code string) bool { return countrySet[code] }

// ValidLanguage reports whether name is part of the language list.
func ValidLanguage(name string) bool { return languageSet[name] }
