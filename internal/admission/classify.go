// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package admission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// # Classification

// Classifier inspects a request for bot or shield signals.
//
// It returns an empty [Reason] for clean traffic. An error means the request
// could not be classified and must not be let through. A classifier that
// reads the body must leave it readable for the handler.
type Classifier interface {
	Classify(request *http.Request) (Reason, error)
}

// HeuristicClassifier classifies from the User-Agent, the request target and
// a bounded prefix of the body. It only fails when the body cannot be read.
type HeuristicClassifier struct{}

// NewHeuristicClassifier returns the default classifier.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

// Classify checks bot signals first, then shield rules on the target and body.
func (HeuristicClassifier) Classify(request *http.Request) (Reason, error) {
	if IsBot(request.UserAgent()) {
		return ReasonBot, nil
	}
	if _, hit := ShieldRule(request.URL); hit {
		return ReasonShield, nil
	}

	_, hit, err := BodyShieldRule(request)
	if err != nil {
		return "", err
	}
	if hit {
		return ReasonShield, nil
	}
	return "", nil
}

// # Bot Detection

// automationAgents never belong to a browser or a verified crawler; they
// win even when an allowed token also appears in the agent.
var automationAgents = []string{
	"curl", "wget", "python-requests", "python-urllib", "aiohttp", "go-http-client",
	"okhttp", "libwww-perl", "headless", "phantomjs", "selenium", "puppeteer",
	"playwright", "scrapy", "httpclient",
}

// Search engines and link-preview fetchers are welcome even though they
// identify as bots. The match is on the agent string only and is not verified.
var allowedAgents = []string{
	"googlebot", "bingbot", "duckduckbot", "yandex", "baiduspider", "applebot",
	"slackbot", "discordbot", "twitterbot", "facebookexternalhit", "linkedinbot",
	"whatsapp", "telegrambot",
}

// genericBotTokens catch self-declared bots not on the allow list.
var genericBotTokens = []string{"bot", "crawler", "spider"}

// IsBot reports whether userAgent looks automated. An empty agent is
// treated as automated.
func IsBot(userAgent string) bool {
	agent := strings.ToLower(strings.TrimSpace(userAgent))
	if agent == "" {
		return true
	}

	if containsAny(agent, automationAgents) {
		return true
	}
	if containsAny(agent, allowedAgents) {
		return false
	}
	return containsAny(agent, genericBotTokens)
}

func containsAny(agent string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(agent, token) {
			return true
		}
	}
	return false
}

// # Shield

type shieldRule struct {
	name    string
	pattern *regexp.Regexp
}

var shieldRules = []shieldRule{
	{"sql_injection", regexp.MustCompile(`(?i)(\bunion\b.+\bselect\b|\b(or|and)\b\s+['"]?\w+['"]?\s*=\s*['"]?\w+|'\s*(or|and)\s|;\s*(drop|delete|insert|update|truncate)\b|\b(sleep|benchmark|pg_sleep)\s*\(|'\s*--|/\*.*\*/)`)},
	{"xss", regexp.MustCompile(`(?i)(<\s*/?\s*script|javascript\s*:|\bon(error|load|mouseover|focus|click)\s*=|<\s*iframe|<\s*img[^>]+src\s*=|document\.cookie)`)},
	{"path_traversal", regexp.MustCompile(`(?i)(\.\./|\.\.\\|%2e%2e|%252e)`)},
	{"command_injection", regexp.MustCompile("(?i)(;\\s*(cat|ls|id|whoami|uname|wget|curl|nc|bash|sh|rm)\\b|\\|\\s*(cat|ls|id|whoami|bash|sh|nc)\\b|\\$\\(|`|&&\\s*(cat|ls|id|whoami|rm)\\b)")},
	{"sensitive_file", regexp.MustCompile(`(?i)(/\.env\b|/\.git\b|/\.htaccess|/\.aws\b|wp-admin|wp-login\.php|xmlrpc\.php|phpmyadmin|/etc/passwd|/proc/self|/cgi-bin/)`)},
}

// ShieldRule returns the name of the first rule target trips, if any.
// Path and query are inspected both raw and percent-decoded.
func ShieldRule(target *url.URL) (string, bool) {
	if target == nil {
		return "", false
	}

	candidates := []string{target.EscapedPath(), target.RawQuery}
	if decoded, err := url.PathUnescape(target.EscapedPath()); err == nil {
		candidates = append(candidates, decoded)
	}
	if decoded, err := url.QueryUnescape(target.RawQuery); err == nil {
		candidates = append(candidates, decoded)
	}

	for _, rule := range shieldRules {
		for _, candidate := range candidates {
			if candidate != "" && rule.pattern.MatchString(candidate) {
				return rule.name, true
			}
		}
	}
	return "", false
}

// # Body Shield

// MaxInspectedBody bounds how much of a request body the shield reads.
const MaxInspectedBody = 8 << 10

// bodyRules are the shield rules that make sense inside a payload; sensitive
// file paths like /.env are only meaningful in the target.
var bodyRules = []string{"sql_injection", "xss", "command_injection"}

// secretKeys name JSON fields whose values are never inspected, so that any
// password is acceptable.
var secretKeys = []string{"password", "secret", "token"}

type rebufferedBody struct {
	io.Reader
	io.Closer
}

/*
BodyShieldRule runs the payload rules over the first [MaxInspectedBody] bytes
of a POST, PUT or PATCH body.

A complete JSON document is inspected value by value, skipping secret fields;
anything else (including a truncated document) is inspected raw. The body is
re-buffered, so handlers still read it in full.
*/
func BodyShieldRule(request *http.Request) (string, bool, error) {
	switch request.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return "", false, nil
	}
	if request.Body == nil || request.Body == http.NoBody {
		return "", false, nil
	}

	prefix, err := io.ReadAll(io.LimitReader(request.Body, MaxInspectedBody+1))
	if err != nil {
		return "", false, fmt.Errorf("admission: failed to read body: %w", err)
	}
	request.Body = rebufferedBody{
		Reader: io.MultiReader(bytes.NewReader(prefix), request.Body),
		Closer: request.Body,
	}

	if len(prefix) == 0 {
		return "", false, nil
	}

	candidates := []string{string(prefix)}
	if len(prefix) <= MaxInspectedBody {
		var document any
		if json.Unmarshal(prefix, &document) == nil {
			candidates = payloadStrings(document, nil)
		}
	}

	for _, rule := range shieldRules {
		if !slices.Contains(bodyRules, rule.name) {
			continue
		}
		for _, candidate := range candidates {
			if candidate != "" && rule.pattern.MatchString(candidate) {
				return rule.name, true, nil
			}
		}
	}
	return "", false, nil
}

// payloadStrings collects keys and string values, skipping secret fields.
func payloadStrings(value any, collected []string) []string {
	switch typed := value.(type) {
	case string:
		collected = append(collected, typed)
	case []any:
		for _, item := range typed {
			collected = payloadStrings(item, collected)
		}
	case map[string]any:
		for key, item := range typed {
			collected = append(collected, key)
			if containsAny(strings.ToLower(key), secretKeys) {
				continue
			}
			collected = payloadStrings(item, collected)
		}
	}
	return collected
}
