package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	t.Run("should register valid query tool", func(t *testing.T) {
		r := NewRegistry()

		err := r.Register(Definition{
			Name:        "lookup",
			Kind:        KindQuery,
			Description: "Look something up",
			Parameters: []Parameter{
				{Name: "q", Type: "string", Description: "query", Required: true},
			},
		})
		require.NoError(t, err)

		def, ok := r.Resolve("lookup")
		require.True(t, ok)
		assert.Equal(t, KindQuery, def.Kind)
	})

	t.Run("should add confirmation parameter to command tools", func(t *testing.T) {
		r := NewRegistry()

		err := r.Register(Definition{
			Name:        "doIt",
			Kind:        KindCommand,
			Description: "Do something",
			Parameters: []Parameter{
				{Name: "target", Type: "string", Description: "target", Required: true},
			},
		})
		require.NoError(t, err)

		def, _ := r.Resolve("doIt")
		assert.True(t, hasParameter(*def, ConfirmationField))
	})

	t.Run("should reject unknown kind", func(t *testing.T) {
		r := NewRegistry()
		err := r.Register(Definition{Name: "x", Kind: "magic", Description: "d"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tool kind")
	})

	t.Run("should reject reserved parameter name", func(t *testing.T) {
		r := NewRegistry()
		err := r.Register(Definition{
			Name:        "x",
			Kind:        KindQuery,
			Description: "d",
			Parameters: []Parameter{
				{Name: ResultField, Type: "string", Description: "nope"},
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reserved")
	})

	t.Run("should reject duplicate registration", func(t *testing.T) {
		r := NewRegistry()
		def := Definition{Name: "dup", Kind: KindQuery, Description: "d"}
		require.NoError(t, r.Register(def))
		assert.Error(t, r.Register(def))
	})
}

func TestValidate(t *testing.T) {
	setup := func(t *testing.T) *Registry {
		t.Helper()
		r, err := NewBuiltinRegistry()
		require.NoError(t, err)
		return r
	}

	t.Run("should accept valid command arguments", func(t *testing.T) {
		r := setup(t)

		err := r.Validate("sendMove", map[string]interface{}{
			"recipientAddress":  "0xabc",
			"amount":            "2.5",
			ConfirmationField:   "Send 2.5 MOVE to 0xabc?",
		})
		assert.NoError(t, err)
	})

	t.Run("should reject missing required command argument", func(t *testing.T) {
		r := setup(t)

		err := r.Validate("sendMove", map[string]interface{}{
			"recipientAddress": "0xabc",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "amount")
	})

	t.Run("should reject unknown fields on command tools", func(t *testing.T) {
		r := setup(t)

		err := r.Validate("sendMove", map[string]interface{}{
			"recipientAddress": "0xabc",
			"amount":           "1",
			"gasBoost":         true,
		})
		assert.Error(t, err)
	})

	t.Run("should permit unknown fields on query tools", func(t *testing.T) {
		r := setup(t)

		err := r.Validate("searchMovementDocs", map[string]interface{}{
			"query": "gas fees",
			"hint":  "extra",
		})
		assert.NoError(t, err)
	})

	t.Run("should reject model-populated result field on query tools", func(t *testing.T) {
		r := setup(t)

		err := r.Validate("searchMovementDocs", map[string]interface{}{
			"query":     "gas fees",
			ResultField: "fabricated",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reserved")
	})

	t.Run("should reject unknown tool", func(t *testing.T) {
		r := setup(t)
		err := r.Validate("teleport", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tool not found")
	})
}

func TestConfirmationMessage(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)

	t.Run("should use model-populated message", func(t *testing.T) {
		msg := r.ConfirmationMessage("sendMove", map[string]interface{}{
			"recipientAddress": "0xabc",
			"amount":           "1",
			ConfirmationField:  "Send 1 MOVE to 0xabc?",
		})
		assert.Equal(t, "Send 1 MOVE to 0xabc?", msg)
	})

	t.Run("should synthesize deterministic fallback", func(t *testing.T) {
		args := map[string]interface{}{
			"recipientAddress": "0xabc",
			"amount":           "1",
		}
		msg := r.ConfirmationMessage("sendMove", args)
		assert.Equal(t, "execute sendMove with amount=1, recipientAddress=0xabc?", msg)
		assert.Equal(t, msg, r.ConfirmationMessage("sendMove", args))
	})

	t.Run("should ignore blank model message", func(t *testing.T) {
		msg := r.ConfirmationMessage("deployMemeCoin", map[string]interface{}{
			"name":            "Doge",
			ConfirmationField: "   ",
		})
		assert.Contains(t, msg, "execute deployMemeCoin")
	})
}

func TestSchemas(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)

	t.Run("should export all builtin tools", func(t *testing.T) {
		schemas := r.Schemas()
		assert.Len(t, schemas, len(Builtin()))
	})

	t.Run("should close command schemas and open query schemas", func(t *testing.T) {
		for _, raw := range r.Schemas() {
			schema := raw.(map[string]interface{})
			name := schema["name"].(string)
			input := schema["input_schema"].(map[string]interface{})
			def, _ := r.Resolve(name)

			if def.Kind == KindCommand {
				assert.Equal(t, false, input["additionalProperties"], name)
			} else {
				assert.Equal(t, true, input["additionalProperties"], name)
			}
		}
	})
}
