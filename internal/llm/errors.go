package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory groups upstream failures by what the user should be told.
type ErrorCategory string

const (
	CategoryOverloaded   ErrorCategory = "overloaded"
	CategoryNotFound     ErrorCategory = "not_found"
	CategoryUnauthorized ErrorCategory = "unauthorized"
	CategoryForbidden    ErrorCategory = "forbidden"
	CategoryRateLimited  ErrorCategory = "rate_limited"
	CategoryUnknown      ErrorCategory = "unknown"
)

// classifierRule matches when the message contains any of codes
// (case-sensitive) or any of words (case-insensitive).
type classifierRule struct {
	category ErrorCategory
	codes    []string
	words    []string
}

// Order matters: the first matching rule wins.
var classifierRules = []classifierRule{
	{category: CategoryOverloaded, codes: []string{"503"}, words: []string{"overloaded", "service unavailable"}},
	{category: CategoryNotFound, codes: []string{"404"}, words: []string{"not found"}},
	{category: CategoryUnauthorized, codes: []string{"401"}, words: []string{"api key"}},
	{category: CategoryForbidden, codes: []string{"403"}},
	{category: CategoryRateLimited, codes: []string{"429"}, words: []string{"rate limit"}},
}

var userMessages = map[ErrorCategory]string{
	CategoryOverloaded:   "The AI service is temporarily overloaded. Please try again in a moment.",
	CategoryNotFound:     "The AI model is not available right now. Please try again later.",
	CategoryUnauthorized: "Authentication with the AI service failed. Check the API key configuration.",
	CategoryForbidden:    "Access to the AI service was denied. Check the API key permissions.",
	CategoryRateLimited:  "Rate limited - too many requests. Please wait a moment and try again.",
}

func (r classifierRule) matches(msg, lower string) bool {
	for _, code := range r.codes {
		if strings.Contains(msg, code) {
			return true
		}
	}
	for _, word := range r.words {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// ClassifyMessage maps a raw error message onto a category.
func ClassifyMessage(msg string) ErrorCategory {
	if msg == "" {
		return CategoryUnknown
	}
	lower := strings.ToLower(msg)
	for _, rule := range classifierRules {
		if rule.matches(msg, lower) {
			return rule.category
		}
	}
	return CategoryUnknown
}

// Classify maps an error onto a category. A resolver exhaustion is classified
// by the last underlying failure rather than its own summary text.
func Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) && exhausted.Last != nil {
		return ClassifyMessage(exhausted.Last.Error())
	}
	return ClassifyMessage(err.Error())
}

// UserMessage returns the message shown to the user for a category.
// Unknown failures pass the raw upstream message through verbatim.
func UserMessage(category ErrorCategory, raw string) string {
	if msg, ok := userMessages[category]; ok {
		return msg
	}
	return raw
}

// FormatErrorForUser classifies err and returns its category and user text.
func FormatErrorForUser(err error) (ErrorCategory, string) {
	if err == nil {
		return CategoryUnknown, ""
	}
	category := Classify(err)
	return category, UserMessage(category, err.Error())
}

// ExhaustedError is returned by the resolver when no candidate model is usable.
type ExhaustedError struct {
	Tried []string
	Last  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no available model (tried %s): all models unavailable or overloaded: %v",
		strings.Join(e.Tried, ", "), e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}
