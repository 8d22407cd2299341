package api

// buildOpenAPIDoc returns an OpenAPI 3.1 document describing the HTTP surface.
func buildOpenAPIDoc(signatureHeader string) map[string]any {
	errorResponse := func(description string) map[string]any {
		return map[string]any{
			"description": description,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": "#/components/schemas/Error"},
				},
			},
		}
	}
	jsonResponse := func(description, schema string) map[string]any {
		return map[string]any{
			"description": description,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": "#/components/schemas/" + schema},
				},
			},
		}
	}
	queryParam := func(name, typ, description string) map[string]any {
		return map[string]any{
			"name":        name,
			"in":          "query",
			"required":    false,
			"description": description,
			"schema":      map[string]any{"type": typ},
		}
	}

	paths := map[string]any{
		"/webhook": map[string]any{
			"post": map[string]any{
				"operationId": "ingestMessage",
				"summary":     "Ingest a signed message event",
				"parameters": []any{
					map[string]any{
						"name":        signatureHeader,
						"in":          "header",
						"required":    true,
						"description": "Lowercase hex HMAC-SHA256 of the raw body",
						"schema":      map[string]any{"type": "string"},
					},
				},
				"requestBody": map[string]any{
					"required": true,
					"content": map[string]any{
						"application/json": map[string]any{
							"schema": map[string]any{"$ref": "#/components/schemas/WebhookPayload"},
						},
					},
				},
				"responses": map[string]any{
					"200": jsonResponse("Stored or already present", "Status"),
					"400": errorResponse("Malformed JSON"),
					"401": errorResponse("Invalid or missing signature"),
					"413": errorResponse("Body too large"),
					"422": errorResponse("Validation failed"),
					"500": errorResponse("Storage fault"),
					"503": errorResponse("Service not configured"),
				},
			},
		},
		"/messages": map[string]any{
			"get": map[string]any{
				"operationId": "listMessages",
				"summary":     "List stored messages ordered by ts then message_id",
				"parameters": []any{
					queryParam("limit", "integer", "Page size (default 50)"),
					queryParam("offset", "integer", "Rows to skip (default 0)"),
					queryParam("from_", "string", "Exact sender match"),
					queryParam("since", "string", "Keep messages with ts >= since"),
					queryParam("q", "string", "Case-insensitive text substring"),
				},
				"responses": map[string]any{
					"200": jsonResponse("One page of messages", "MessageList"),
					"422": errorResponse("Invalid paging parameters"),
					"500": errorResponse("Storage fault"),
					"503": errorResponse("Service not configured"),
				},
			},
		},
		"/stats": map[string]any{
			"get": map[string]any{
				"operationId": "getStats",
				"summary":     "Aggregate message statistics",
				"responses": map[string]any{
					"200": jsonResponse("Aggregate statistics", "Stats"),
					"500": errorResponse("Storage fault"),
					"503": errorResponse("Service not configured"),
				},
			},
		},
		"/metrics": map[string]any{
			"get": map[string]any{
				"operationId": "getMetrics",
				"summary":     "Request and webhook outcome counters",
				"responses": map[string]any{
					"200": map[string]any{
						"description": "Counters, one per line",
						"content":     map[string]any{"text/plain": map[string]any{"schema": map[string]any{"type": "string"}}},
					},
				},
			},
		},
		"/health/live": map[string]any{
			"get": map[string]any{
				"operationId": "live",
				"responses": map[string]any{
					"200": jsonResponse("Process is running", "Health"),
				},
			},
		},
		"/health/ready": map[string]any{
			"get": map[string]any{
				"operationId": "ready",
				"responses": map[string]any{
					"200": jsonResponse("Configured and storage reachable", "Health"),
					"503": jsonResponse("Not ready", "Health"),
				},
			},
		},
	}

	nullableString := map[string]any{"type": []string{"string", "null"}}
	str := map[string]any{"type": "string"}
	integer := map[string]any{"type": "integer"}

	schemas := map[string]any{
		"WebhookPayload": map[string]any{
			"type":     "object",
			"required": []string{"message_id", "from", "to", "ts"},
			"properties": map[string]any{
				"message_id": str,
				"from":       str,
				"to":         str,
				"ts":         str,
				"text":       map[string]any{"type": "string", "maxLength": 4096},
			},
		},
		"Message": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message_id": str,
				"from":       str,
				"to":         str,
				"ts":         str,
				"text":       nullableString,
			},
		},
		"MessageList": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"data":   map[string]any{"type": "array", "items": map[string]any{"$ref": "#/components/schemas/Message"}},
				"total":  integer,
				"limit":  integer,
				"offset": integer,
			},
		},
		"Stats": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"total_messages": integer,
				"senders_count":  integer,
				"messages_per_sender": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":       "object",
						"properties": map[string]any{"from": str, "count": integer},
					},
				},
				"first_message_ts": nullableString,
				"last_message_ts":  nullableString,
			},
		},
		"Status": map[string]any{
			"type":       "object",
			"properties": map[string]any{"status": str},
		},
		"Health": map[string]any{
			"type":       "object",
			"properties": map[string]any{"status": str},
		},
		"Error": map[string]any{
			"type":       "object",
			"properties": map[string]any{"error": str},
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "msghook",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"schemas": schemas,
		},
	}
}
