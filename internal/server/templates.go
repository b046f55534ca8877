package server

import (
	_ "embed"
	"html/template"
)

//go:embed templates/main.html
var mainPageTemplateHTML string

var mainPageTemplate = template.Must(template.New("main").Parse(mainPageTemplateHTML))

// MainPageData represents the data for both the start and the callback page
type MainPageData struct {
	ClientID        string
	CodeChallenge   string
	ChallengeMethod string
	AccessToken     string
	AuthorizeURL    string
	PKCE            bool
	Completed       bool
}
