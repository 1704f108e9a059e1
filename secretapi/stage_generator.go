package secretapi

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	upperChars       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars       = "abcdefghijklmnopqrstuvwxyz"
	digitChars       = "0123456789"
	symbolChars      = "!@#$%^&*()-_=+[]{}"
	ambiguousChars   = "0Ol1I"
	similarChars     = "il1Lo0O"
	defaultSecretLen = 32
)

// generatorStage implements key creation on demand: a GetSecretKey miss
// draws a value and writes it downstream instead of failing 404. It never
// answers GetSecretID itself, and neither WriteSecret nor SecretUpdated do
// anything but pass through — generation is entirely a read-path behavior.
type generatorStage struct {
	length            int
	charset           string
	overwriteExisting bool
}

func newGeneratorStageFromConfig(rawConfig map[string]any) (Stage, error) {
	length := defaultSecretLen
	if v, ok := rawConfig["length"]; ok {
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("generator stage: length: %w", err)
		}
		length = n
	}

	overwriteExisting, _ := rawConfig["overwrite_existing"].(bool)

	charset, err := buildGeneratorCharset(rawConfig)
	if err != nil {
		return nil, err
	}

	return &generatorStage{length: length, charset: charset, overwriteExisting: overwriteExisting}, nil
}

// buildGeneratorCharset assembles the draw alphabet: custom_charset if
// given, otherwise the union of whichever character classes are enabled
// (upper/lower/digits/symbols, defaulting to upper+lower+digits if none are
// named), with ambiguous/similar/explicitly-excluded runes stripped after.
// An empty result is valid — draw() then returns the empty string.
func buildGeneratorCharset(rawConfig map[string]any) (string, error) {
	var base string
	if v, ok := rawConfig["custom_charset"]; ok {
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("generator stage: custom_charset must be a string")
		}
		base = s
	} else {
		classes := []struct {
			key   string
			chars string
		}{
			{"include_upper", upperChars},
			{"include_lower", lowerChars},
			{"include_digits", digitChars},
			{"include_symbols", symbolChars},
		}
		var b strings.Builder
		anyNamed := false
		for _, class := range classes {
			v, ok := rawConfig[class.key]
			if !ok {
				continue
			}
			anyNamed = true
			enabled, ok := v.(bool)
			if !ok {
				return "", fmt.Errorf("generator stage: %s must be a bool", class.key)
			}
			if enabled {
				b.WriteString(class.chars)
			}
		}
		if !anyNamed {
			b.WriteString(upperChars)
			b.WriteString(lowerChars)
			b.WriteString(digitChars)
		}
		base = b.String()
	}

	exclude := map[rune]bool{}
	if excludeAmbiguous, _ := rawConfig["exclude_ambiguous"].(bool); excludeAmbiguous {
		for _, r := range ambiguousChars {
			exclude[r] = true
		}
	}
	if excludeSimilar, _ := rawConfig["exclude_similar"].(bool); excludeSimilar {
		for _, r := range similarChars {
			exclude[r] = true
		}
	}
	if v, ok := rawConfig["exclude_chars"]; ok {
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("generator stage: exclude_chars must be a string")
		}
		for _, r := range s {
			exclude[r] = true
		}
	}

	seen := map[rune]bool{}
	var b strings.Builder
	for _, r := range base {
		if exclude[r] || seen[r] {
			continue
		}
		seen[r] = true
		b.WriteRune(r)
	}
	return b.String(), nil
}

func (s *generatorStage) Name() string { return "generator" }

func (s *generatorStage) draw() (string, error) {
	if s.charset == "" {
		return "", nil
	}
	runes := []rune(s.charset)
	out := make([]rune, s.length)
	max := big.NewInt(int64(len(runes)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generator stage: drawing random secret: %w", err)
		}
		out[i] = runes[n.Int64()]
	}
	return string(out), nil
}

func (s *generatorStage) GetSecretID(ctx context.Context, keyID string, token Token, next ForwardExec) Result {
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotSupportedByAPI, "no further stage to resolve secret by id"))
	}
	return stage.GetSecretID(ctx, keyID, token, next)
}

// GetSecretKey probes downstream for key and, on a miss (or always, if
// overwrite_existing is set), draws a value and writes it downstream,
// returning that write's result verbatim.
func (s *generatorStage) GetSecretKey(ctx context.Context, key string, token Token, next ForwardExec) Result {
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotSupportedByAPI, "no further stage to resolve secret by key"))
	}

	if !s.overwriteExisting {
		probe := next.Copy()
		result := stage.GetSecretKey(ctx, key, token, probe)
		if result.Secret != nil || (result.IsFailure() && result.Failure.Code != CodeNotFound) {
			return result
		}
	}

	value, err := s.draw()
	if err != nil {
		return Err(NewFailure(CodeUpstreamFailure, err.Error()))
	}

	writeProbe := next.Copy()
	return stage.WriteSecret(ctx, WriteSecret{Key: key, Value: value}, token, writeProbe)
}

// WriteSecret is a pass-through: generation only happens on the read path.
func (s *generatorStage) WriteSecret(ctx context.Context, ws WriteSecret, token Token, next ForwardExec) Result {
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotSupportedByAPI, "no further stage to write secret"))
	}
	return stage.WriteSecret(ctx, ws, token, next)
}

func (s *generatorStage) SecretUpdated(ctx context.Context, tokenID TokenID, updated []UpdatedSecret, prev ReverseExec) {
	if stage, ok := prev.Next(); ok {
		stage.SecretUpdated(ctx, tokenID, updated, prev)
	}
}
