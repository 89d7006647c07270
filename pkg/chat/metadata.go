package chat

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

const historyKey = "chat_history"

// DecodeMetadata reads thread metadata that arrives either as a JSON string
// or as an already decoded map. Nil and empty strings decode to zero metadata.
func DecodeMetadata(raw any) (domain.ThreadMetadata, error) {
	var meta domain.ThreadMetadata

	doc, err := metadataMap(raw)
	if err != nil {
		return meta, err
	}
	if doc == nil {
		return meta, nil
	}

	if err := mapstructure.Decode(doc, &meta); err != nil {
		return meta, fmt.Errorf("failed to decode thread metadata: %w", err)
	}
	return meta, nil
}

func metadataMap(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(v), &doc); err != nil {
			return nil, fmt.Errorf("failed to parse thread metadata: %w", err)
		}
		return doc, nil
	case []byte:
		return metadataMap(string(v))
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported thread metadata type %T", raw)
	}
}

// appendHistory adds entries to the chat_history of a JSON metadata document,
// keeping any other keys intact.
func appendHistory(metadata string, entries ...domain.HistoryEntry) (string, error) {
	doc, err := metadataMap(metadata)
	if err != nil {
		return "", err
	}
	if doc == nil {
		doc = make(map[string]any)
	}

	meta, err := DecodeMetadata(doc)
	if err != nil {
		return "", err
	}
	doc[historyKey] = append(meta.ChatHistory, entries...)

	out, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode thread metadata: %w", err)
	}
	return string(out), nil
}
