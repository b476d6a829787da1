package types

import (
	"encoding/json"

	"github.com/cohesivestack/valgo"
	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
)

var (
	roles       = []Role{RoleUser, RoleAgent, RoleSystem}
	memoryTypes = []MemoryType{MemoryFact, MemoryPreference, MemoryRelationship, MemoryContext, MemorySkill}
)

/*
ValidateMessage checks a message before it is appended. Tool call parameters
and results must be well-formed JSON when present.
*/
func ValidateMessage(in MessageInput) error {
	v := valgo.Is(valgo.String(in.Role, "role").InSlice(roles))

	for _, call := range in.ToolCalls {
		v.Is(valgo.String(call.ID, "toolCalls.id").Not().Blank())
		v.Is(valgo.String(call.ToolName, "toolCalls.toolName").Not().Blank())
	}

	if !v.Valid() {
		return errors.Validation("invalid message: %v", v.Error())
	}

	for _, call := range in.ToolCalls {
		if len(call.Parameters) > 0 && !json.Valid(call.Parameters) {
			return errors.Validation("tool call %s has malformed parameters", call.ID)
		}

		if len(call.Result) > 0 && !json.Valid(call.Result) {
			return errors.Validation("tool call %s has malformed result", call.ID)
		}
	}

	return nil
}

/*
ValidateMemory checks a memory entry supplied from outside the process.
*/
func ValidateMemory(entry MemoryEntry) error {
	v := valgo.Is(valgo.String(entry.Content, "content").Not().Blank()).
		Is(valgo.String(entry.Type, "type").InSlice(memoryTypes)).
		Is(valgo.Float64(entry.Confidence, "confidence").Between(0.0, 1.0))

	if !v.Valid() {
		return errors.Validation("invalid memory: %v", v.Error())
	}

	return nil
}

// ValidateOwner rejects blank owner ids at the session boundary.
func ValidateOwner(ownerID string) error {
	v := valgo.Is(valgo.String(ownerID, "ownerId").Not().Blank())

	if !v.Valid() {
		return errors.Validation("invalid owner: %v", v.Error())
	}

	return nil
}
