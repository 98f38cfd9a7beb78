package triage

import (
	"fmt"
	"strings"
)

// Theme is the intermediate routing category a department is chosen from.
type Theme string

const (
	ThemeWaste      Theme = "waste"
	ThemePlayground Theme = "playground"
	ThemeLighting   Theme = "lighting"
	ThemeRoad       Theme = "road"
	ThemeOther      Theme = "other"
)

// DepartmentRejected is the department of complaints that failed the relevance gate.
const DepartmentRejected = "REJECTED"

const rejectedExplanation = "Routing decision:\n" +
	"- relevance gate failed: the photo is not a city infrastructure issue or its confidence is below the threshold"

// DefaultDepartments maps each theme to the office that handles it.
var DefaultDepartments = map[Theme]string{
	ThemeWaste:      "Sanitation Services",
	ThemeLighting:   "Street Lighting Office",
	ThemePlayground: "Beautification & Housing Office",
	ThemeRoad:       "Roads & Transport Office",
	ThemeOther:      "General Dispatch",
}

// SignalSource names which classifier output a rule inspects.
type SignalSource string

const (
	SourceImage SignalSource = "image"
	SourceText  SignalSource = "text"
)

// Rule assigns Theme when any keyword is contained in the chosen signal.
type Rule struct {
	Source   SignalSource
	Keywords []string
	Theme    Theme
}

// Matches reports whether the rule fires for the given classifier labels.
func (r Rule) Matches(imageLabel, textCategory string) bool {
	subject := textCategory
	if r.Source == SourceImage {
		subject = imageLabel
	}
	subject = strings.ToLower(subject)
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(subject, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// DefaultRules are evaluated top-down, first match wins. Image rules come first:
// a labeled photo of an object is stronger evidence than free text.
var DefaultRules = []Rule{
	{SourceImage, []string{"trash", "garbage", "litter", "waste", "container", "dumpster"}, ThemeWaste},
	{SourceImage, []string{"playground"}, ThemePlayground},
	{SourceImage, []string{"lighting", "lamp"}, ThemeLighting},
	{SourceImage, []string{"road", "pothole", "sidewalk"}, ThemeRoad},

	{SourceText, []string{"trash", "garbage", "illegal dump", "litter", "waste"}, ThemeWaste},
	{SourceText, []string{"playground"}, ThemePlayground},
	{SourceText, []string{"lighting", "lamp"}, ThemeLighting},
	{SourceText, []string{"road", "pavement", "pothole"}, ThemeRoad},
}

// Route is the department decision for a complaint.
type Route struct {
	Department  string `json:"department"`
	Theme       Theme  `json:"theme"`
	Explanation string `json:"explanation"`
}

// RoutingResolver maps fused classifier signals to a department.
type RoutingResolver struct {
	rules       []Rule
	departments map[Theme]string
}

// NewRoutingResolver returns a resolver. Nil arguments use DefaultRules and DefaultDepartments.
func NewRoutingResolver(rules []Rule, departments map[Theme]string) *RoutingResolver {
	if rules == nil {
		rules = DefaultRules
	}
	if departments == nil {
		departments = DefaultDepartments
	}
	return &RoutingResolver{rules: rules, departments: departments}
}

// Theme returns the theme of the first matching rule, or ThemeOther.
func (r *RoutingResolver) Theme(imageLabel, textCategory string) Theme {
	for _, rule := range r.rules {
		if rule.Matches(imageLabel, textCategory) {
			return rule.Theme
		}
	}
	return ThemeOther
}

// Resolve picks a department. Same inputs always give the same explanation.
func (r *RoutingResolver) Resolve(imageLabel, textCategory, urgency string, relevant bool) Route {
	if !relevant {
		return Route{Department: DepartmentRejected, Explanation: rejectedExplanation}
	}

	theme := r.Theme(imageLabel, textCategory)
	dept, ok := r.departments[theme]
	if !ok {
		dept = r.departments[ThemeOther]
	}

	explanation := fmt.Sprintf("Routing decision:\n"+
		"- image: %s\n"+
		"- text: %s\n"+
		"- urgency: %s\n"+
		"- theme: %s\n"+
		"- department: %s",
		imageLabel, textCategory, urgency, theme, dept)

	return Route{Department: dept, Theme: theme, Explanation: explanation}
}
