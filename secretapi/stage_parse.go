package secretapi

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// parseFormat controls which serialization a parseSecretStage uses for
// encoding writes and, for "auto", which order it tries when decoding.
type parseFormat string

const (
	formatJSON parseFormat = "json"
	formatYAML parseFormat = "yaml"
	formatAuto parseFormat = "auto"
)

// parseSecretStage translates between the structured value a client reads
// and writes and the flat string an upstream store holds. Reads decode on
// the way back through the stage; writes encode on the way down.
type parseSecretStage struct {
	format parseFormat
}

func newParseSecretStageFromConfig(rawConfig map[string]any) (Stage, error) {
	format := formatAuto
	if v, ok := rawConfig["format"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("parse_secret stage: format must be a string")
		}
		switch parseFormat(s) {
		case formatJSON, formatYAML, formatAuto:
			format = parseFormat(s)
		default:
			return nil, fmt.Errorf("parse_secret stage: unknown format %q", s)
		}
	}
	return &parseSecretStage{format: format}, nil
}

func (s *parseSecretStage) Name() string { return "parse_secret" }

// decode attempts to parse raw into a structured value according to the
// stage's configured format. If every attempted decoder fails, it returns
// raw unchanged and ok=false so the caller can decide whether that is
// acceptable (pass through on read, drop on reverse propagation).
func (s *parseSecretStage) decode(raw string) (value any, ok bool) {
	tryJSON := s.format == formatJSON || s.format == formatAuto
	tryYAML := s.format == formatYAML || s.format == formatAuto

	if tryJSON {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v, true
		}
	}
	if tryYAML {
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err == nil {
			return v, true
		}
	}
	return raw, false
}

// encode serializes value into the stage's write format. On failure it
// returns an empty string and ok=false; the caller then keeps the
// original value untouched.
func (s *parseSecretStage) encode(value any) (encoded string, ok bool) {
	format := s.format
	if format == formatAuto {
		format = formatJSON
	}
	var data []byte
	var err error
	switch format {
	case formatYAML:
		data, err = yaml.Marshal(value)
	default:
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (s *parseSecretStage) GetSecretID(ctx context.Context, keyID string, token Token, next ForwardExec) Result {
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotSupportedByAPI, "no further stage to resolve secret by id"))
	}
	result := stage.GetSecretID(ctx, keyID, token, next)
	return s.decodeResult(result)
}

func (s *parseSecretStage) GetSecretKey(ctx context.Context, key string, token Token, next ForwardExec) Result {
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotSupportedByAPI, "no further stage to resolve secret by key"))
	}
	result := stage.GetSecretKey(ctx, key, token, next)
	return s.decodeResult(result)
}

func (s *parseSecretStage) decodeResult(result Result) Result {
	if result.IsFailure() || result.Secret == nil {
		return result
	}
	if raw, isString := result.Secret.Value.(string); isString {
		if decoded, ok := s.decode(raw); ok {
			secret := *result.Secret
			secret.Value = decoded
			return Ok(&secret)
		}
	}
	return result
}

func (s *parseSecretStage) WriteSecret(ctx context.Context, ws WriteSecret, token Token, next ForwardExec) Result {
	if encoded, ok := s.encode(ws.Value); ok {
		ws.Value = encoded
	}
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotSupportedByAPI, "no further stage to write secret"))
	}
	return stage.WriteSecret(ctx, ws, token, next)
}

func (s *parseSecretStage) SecretUpdated(ctx context.Context, tokenID TokenID, updated []UpdatedSecret, prev ReverseExec) {
	decoded := make([]UpdatedSecret, 0, len(updated))
	for _, u := range updated {
		if raw, isString := u.Value.(string); isString {
			value, ok := s.decode(raw)
			if !ok {
				// Unparseable payload: drop this entry from the batch
				// rather than propagate a value earlier stages cannot make
				// sense of, or fail the whole notification over one entry.
				continue
			}
			u.Value = value
		}
		decoded = append(decoded, u)
	}
	if len(decoded) == 0 {
		return
	}
	if stage, ok := prev.Next(); ok {
		stage.SecretUpdated(ctx, tokenID, decoded, prev)
	}
}
