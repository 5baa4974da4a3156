package notify

const contextInvalidatedSchema = `{
  "type": "object",
  "title": "ContextInvalidated",
  "properties": {
    "event_id": {"type": "string"},
    "user_id": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "user_id", "occurred_at"],
  "additionalProperties": false
}`
