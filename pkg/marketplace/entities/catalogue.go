// Package entities declares the marketplace listings served by the API.
package entities

import (
	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

var Awards = &marketplace.Schema{
	Name:         "award",
	Table:        "awards",
	Route:        "awards",
	Moderated:    true,
	ContactField: "contact_email",
	Fields: []marketplace.Field{
		{Name: "name", Kind: marketplace.KindString, Required: true, Rules: "max=255", Searchable: true, Example: "Digital PR Awards"},
		{Name: "category", Kind: marketplace.KindString, Rules: "max=100", Searchable: true, Filterable: true, Example: "Technology"},
		{Name: "organizer", Kind: marketplace.KindString, Rules: "max=255", Searchable: true, Example: "PR Council"},
		{Name: "description", Kind: marketplace.KindText, Searchable: true},
		{Name: "website", Kind: marketplace.KindURL, Example: "https://awards.example.com"},
		{Name: "country", Kind: marketplace.KindString, Rules: "max=100", Filterable: true, Example: "US"},
		{Name: "award_date", Kind: marketplace.KindDate, Example: "2025-11-20"},
		{Name: "deadline", Kind: marketplace.KindDate, Example: "2025-09-30"},
		{Name: "entry_fee", Kind: marketplace.KindNumber, Rules: "gte=0", Example: "250"},
		{Name: "contact_email", Kind: marketplace.KindEmail, Example: "team@example.com"},
		{Name: "logo", Kind: marketplace.KindAttachment},
	},
	Aliases: map[string]string{
		"award_name": "name",
		"title":      "name",
		"url":        "website",
		"email":      "contact_email",
		"fee":        "entry_fee",
		"image":      "logo",
	},
}

var Events = &marketplace.Schema{
	Name:         "event",
	Table:        "events",
	Route:        "events",
	Moderated:    true,
	ContactField: "organizer_email",
	Fields: []marketplace.Field{
		{Name: "title", Kind: marketplace.KindString, Required: true, Rules: "max=255", Searchable: true, Example: "PR Summit"},
		{Name: "description", Kind: marketplace.KindText, Searchable: true},
		{Name: "event_type", Kind: marketplace.KindEnum, Enum: []string{"conference", "webinar", "meetup", "ceremony", "other"}, Filterable: true, Example: "conference"},
		{Name: "venue", Kind: marketplace.KindString, Rules: "max=255", Searchable: true},
		{Name: "city", Kind: marketplace.KindString, Rules: "max=100", Searchable: true, Filterable: true, Example: "London"},
		{Name: "country", Kind: marketplace.KindString, Rules: "max=100", Filterable: true, Example: "GB"},
		{Name: "start_date", Kind: marketplace.KindDate, Required: true, Example: "2025-10-01"},
		{Name: "end_date", Kind: marketplace.KindDate, Example: "2025-10-02"},
		{Name: "is_virtual", Kind: marketplace.KindBool, Filterable: true, Example: "false"},
		{Name: "ticket_url", Kind: marketplace.KindURL},
		{Name: "organizer_email", Kind: marketplace.KindEmail, Example: "events@example.com"},
		{Name: "banner", Kind: marketplace.KindAttachment},
	},
	Aliases: map[string]string{
		"name":     "title",
		"location": "city",
		"date":     "start_date",
		"email":    "organizer_email",
		"image":    "banner",
	},
}

var Publications = &marketplace.Schema{
	Name:         "publication",
	Table:        "publications",
	Route:        "publications",
	Moderated:    true,
	ContactField: "contact_email",
	Fields: []marketplace.Field{
		{Name: "name", Kind: marketplace.KindString, Required: true, Rules: "max=255", Searchable: true, Example: "Tech Daily"},
		{Name: "publication_type", Kind: marketplace.KindEnum, Enum: []string{"magazine", "newspaper", "blog", "podcast", "newsletter"}, Filterable: true, Example: "magazine"},
		{Name: "website", Kind: marketplace.KindURL, Example: "https://techdaily.example.com"},
		{Name: "niche", Kind: marketplace.KindString, Rules: "max=100", Searchable: true, Filterable: true, Example: "Technology"},
		{Name: "country", Kind: marketplace.KindString, Rules: "max=100", Filterable: true, Example: "US"},
		{Name: "language", Kind: marketplace.KindString, Rules: "max=50", Filterable: true, Example: "en"},
		{Name: "monthly_readers", Kind: marketplace.KindInt, Rules: "gte=0", Example: "120000"},
		{Name: "domain_authority", Kind: marketplace.KindInt, Rules: "gte=0,lte=100", Example: "65"},
		{Name: "price", Kind: marketplace.KindNumber, Rules: "gte=0", Example: "450"},
		{Name: "turnaround_days", Kind: marketplace.KindInt, Rules: "gte=0", Example: "7"},
		{Name: "do_follow", Kind: marketplace.KindBool, Filterable: true, Example: "true"},
		{Name: "description", Kind: marketplace.KindText, Searchable: true},
		{Name: "contact_email", Kind: marketplace.KindEmail, Example: "editor@example.com"},
		{Name: "logo", Kind: marketplace.KindAttachment},
	},
	Aliases: map[string]string{
		"publication_name": "name",
		"url":              "website",
		"da":               "domain_authority",
		"readers":          "monthly_readers",
		"tat":              "turnaround_days",
		"dofollow":         "do_follow",
		"email":            "contact_email",
		"image":            "logo",
	},
}

var PowerlistNominations = &marketplace.Schema{
	Name:         "powerlist nomination",
	Table:        "powerlist_nominations",
	Route:        "powerlist-nominations",
	Moderated:    true,
	ContactField: "nominator_email",
	Fields: []marketplace.Field{
		{Name: "nominee_name", Kind: marketplace.KindString, Required: true, Rules: "max=255", Searchable: true, Example: "Jane Doe"},
		{Name: "nominee_title", Kind: marketplace.KindString, Rules: "max=255", Searchable: true, Example: "Head of Communications"},
		{Name: "company", Kind: marketplace.KindString, Rules: "max=255", Searchable: true, Example: "Acme"},
		{Name: "category", Kind: marketplace.KindString, Rules: "max=100", Filterable: true, Example: "Agency Leader"},
		{Name: "year", Kind: marketplace.KindInt, Rules: "gte=2000,lte=2100", Filterable: true, Example: "2025"},
		{Name: "reason", Kind: marketplace.KindText, Required: true},
		{Name: "linkedin_url", Kind: marketplace.KindURL},
		{Name: "nominator_name", Kind: marketplace.KindString, Rules: "max=255"},
		{Name: "nominator_email", Kind: marketplace.KindEmail, Required: true, Example: "nominator@example.com"},
		{Name: "photo", Kind: marketplace.KindAttachment},
	},
	Aliases: map[string]string{
		"name":     "nominee_name",
		"title":    "nominee_title",
		"linkedin": "linkedin_url",
		"email":    "nominator_email",
		"image":    "photo",
	},
}

var RealEstate = &marketplace.Schema{
	Name:         "real estate listing",
	Table:        "real_estate_listings",
	Route:        "real-estate",
	Moderated:    true,
	ContactField: "agent_email",
	Fields: []marketplace.Field{
		{Name: "title", Kind: marketplace.KindString, Required: true, Rules: "max=255", Searchable: true, Example: "Sea view apartment"},
		{Name: "description", Kind: marketplace.KindText, Searchable: true},
		{Name: "property_type", Kind: marketplace.KindEnum, Enum: []string{"apartment", "house", "villa", "office", "land", "commercial"}, Filterable: true, Example: "apartment"},
		{Name: "listing_type", Kind: marketplace.KindEnum, Enum: []string{"sale", "rent"}, Filterable: true, Example: "sale"},
		{Name: "price", Kind: marketplace.KindNumber, Required: true, Rules: "gte=0", Example: "350000"},
		{Name: "currency", Kind: marketplace.KindString, Rules: "len=3", Filterable: true, Example: "USD"},
		{Name: "address", Kind: marketplace.KindString, Rules: "max=500"},
		{Name: "city", Kind: marketplace.KindString, Rules: "max=100", Searchable: true, Filterable: true, Example: "Dubai"},
		{Name: "country", Kind: marketplace.KindString, Rules: "max=100", Filterable: true, Example: "AE"},
		{Name: "bedrooms", Kind: marketplace.KindInt, Rules: "gte=0", Filterable: true, Example: "2"},
		{Name: "bathrooms", Kind: marketplace.KindInt, Rules: "gte=0", Example: "2"},
		{Name: "area_sqm", Kind: marketplace.KindNumber, Rules: "gte=0", Example: "120"},
		{Name: "agent_email", Kind: marketplace.KindEmail, Example: "agent@example.com"},
		{Name: "image", Kind: marketplace.KindAttachment},
	},
	Aliases: map[string]string{
		"type":     "property_type",
		"location": "city",
		"area":     "area_sqm",
		"email":    "agent_email",
		"photo":    "image",
	},
}

var PressPacks = &marketplace.Schema{
	Name:  "press pack",
	Table: "press_packs",
	Route: "press-packs",
	Fields: []marketplace.Field{
		{Name: "name", Kind: marketplace.KindString, Required: true, Rules: "max=255", Searchable: true, Example: "Launch Pack"},
		{Name: "description", Kind: marketplace.KindText, Searchable: true},
		{Name: "price", Kind: marketplace.KindNumber, Required: true, Rules: "gte=0", Example: "1500"},
		{Name: "outlets_count", Kind: marketplace.KindInt, Rules: "gte=0", Example: "10"},
		{Name: "turnaround_days", Kind: marketplace.KindInt, Rules: "gte=0", Example: "14"},
		{Name: "region", Kind: marketplace.KindString, Rules: "max=100", Filterable: true, Example: "Europe"},
		{Name: "features", Kind: marketplace.KindText},
		{Name: "is_featured", Kind: marketplace.KindBool, Filterable: true, Example: "false"},
		{Name: "cover", Kind: marketplace.KindAttachment},
	},
	Aliases: map[string]string{
		"title": "name",
		"image": "cover",
	},
}

var Agencies = &marketplace.Schema{
	Name:         "agency",
	Table:        "agencies",
	Route:        "agencies",
	Moderated:    true,
	ContactField: "contact_email",
	Fields: []marketplace.Field{
		{Name: "name", Kind: marketplace.KindString, Required: true, Rules: "max=255", Searchable: true, Example: "Bright PR"},
		{Name: "description", Kind: marketplace.KindText, Searchable: true},
		{Name: "services", Kind: marketplace.KindText, Searchable: true, Example: "Media relations, crisis communications"},
		{Name: "website", Kind: marketplace.KindURL, Example: "https://bright.example.com"},
		{Name: "city", Kind: marketplace.KindString, Rules: "max=100", Filterable: true, Example: "Berlin"},
		{Name: "country", Kind: marketplace.KindString, Rules: "max=100", Filterable: true, Example: "DE"},
		{Name: "team_size", Kind: marketplace.KindInt, Rules: "gte=0", Example: "25"},
		{Name: "founded_year", Kind: marketplace.KindInt, Rules: "gte=1800,lte=2100", Example: "2012"},
		{Name: "contact_email", Kind: marketplace.KindEmail, Required: true, Example: "hello@bright.example.com"},
		{Name: "phone", Kind: marketplace.KindString, Rules: "max=50"},
		{Name: "logo", Kind: marketplace.KindAttachment},
	},
	Aliases: map[string]string{
		"agency_name": "name",
		"url":         "website",
		"email":       "contact_email",
		"image":       "logo",
	},
}

var Radios = &marketplace.Schema{
	Name:  "radio",
	Table: "radios",
	Route: "radios",
	Fields: []marketplace.Field{
		{Name: "name", Kind: marketplace.KindString, Required: true, Rules: "max=255", Searchable: true, Example: "City FM"},
		{Name: "frequency", Kind: marketplace.KindString, Rules: "max=50", Example: "101.5 FM"},
		{Name: "genre", Kind: marketplace.KindString, Rules: "max=100", Searchable: true, Filterable: true, Example: "News"},
		{Name: "city", Kind: marketplace.KindString, Rules: "max=100", Filterable: true, Example: "Lagos"},
		{Name: "country", Kind: marketplace.KindString, Rules: "max=100", Filterable: true, Example: "NG"},
		{Name: "stream_url", Kind: marketplace.KindURL},
		{Name: "website", Kind: marketplace.KindURL},
		{Name: "audience_size", Kind: marketplace.KindInt, Rules: "gte=0", Example: "500000"},
		{Name: "price", Kind: marketplace.KindNumber, Rules: "gte=0", Example: "300"},
		{Name: "logo", Kind: marketplace.KindAttachment},
	},
	Aliases: map[string]string{
		"station_name": "name",
		"station":      "name",
		"url":          "website",
		"image":        "logo",
	},
}

// Catalogue returns every entity in route order.
func Catalogue() []*marketplace.Schema {
	return []*marketplace.Schema{
		Awards,
		Events,
		Publications,
		PowerlistNominations,
		RealEstate,
		PressPacks,
		Agencies,
		Radios,
	}
}

// Lookup returns the entity served under route.
func Lookup(route string) (*marketplace.Schema, bool) {
	for _, s := range Catalogue() {
		if s.Route == route || s.Table == route {
			return s, true
		}
	}
	return nil, false
}
