package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "VidKeep Storage API",
        "description": "Storage quota lifecycle, chunked uploads and archival eviction for hosted video assets",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Accounts", "description": "Storage account state and usage"},
        {"name": "Uploads", "description": "Chunked upload sessions"},
        {"name": "Assets", "description": "Stored asset metadata and downloads"},
        {"name": "Maintenance", "description": "Quota sweeps and operational stats"}
    ],
    "paths": {
        "/accounts/{ownerId}": {
            "get": {
                "tags": ["Accounts"],
                "summary": "Get storage account state",
                "parameters": [
                    {"name": "ownerId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/accounts/{ownerId}/usage": {
            "get": {
                "tags": ["Accounts"],
                "summary": "Get the cached usage snapshot",
                "parameters": [
                    {"name": "ownerId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/accounts/{ownerId}/sync": {
            "post": {
                "tags": ["Accounts"],
                "summary": "Reconcile the account quota with the billing plan",
                "parameters": [
                    {"name": "ownerId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Billing unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/uploads": {
            "post": {
                "tags": ["Uploads"],
                "summary": "Start a chunked upload session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BeginUploadRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Uploads blocked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "Quota exceeded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/uploads/{id}": {
            "get": {
                "tags": ["Uploads"],
                "summary": "Get upload session progress",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/uploads/{id}/chunks/{number}": {
            "put": {
                "tags": ["Uploads"],
                "summary": "Upload one chunk",
                "consumes": ["application/octet-stream"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "number", "in": "path", "required": true, "type": "integer"},
                    {"name": "body", "in": "body", "required": true, "schema": {"type": "string", "format": "binary"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate chunk", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Session expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assets": {
            "get": {
                "tags": ["Assets"],
                "summary": "List an owner's assets",
                "parameters": [
                    {"name": "ownerId", "in": "query", "required": true, "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["ACTIVE", "ARCHIVED", "DELETED"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assets/{id}": {
            "get": {
                "tags": ["Assets"],
                "summary": "Get asset metadata",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Assets"],
                "summary": "Delete an asset",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/assets/{id}/download-url": {
            "post": {
                "tags": ["Assets"],
                "summary": "Issue a signed download link",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Sharing blocked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assets/{id}/download": {
            "get": {
                "tags": ["Assets"],
                "summary": "Download an asset via signed token",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Asset bytes"}
                }
            }
        },
        "/maintenance/sweep": {
            "post": {
                "tags": ["Maintenance"],
                "summary": "Run a quota maintenance sweep",
                "parameters": [
                    {"name": "options", "in": "body", "schema": {"$ref": "#/definitions/MaintenanceOptions"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/maintenance/stats": {
            "get": {
                "tags": ["Maintenance"],
                "summary": "Aggregated operational metrics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "StorageAccount": {
            "type": "object",
            "properties": {
                "ownerId": {"type": "string"},
                "usedBytes": {"type": "integer"},
                "quotaBytes": {"type": "integer"},
                "isPremium": {"type": "boolean"},
                "inGracePeriod": {"type": "boolean"},
                "gracePeriodStart": {"type": "string"},
                "gracePeriodEnd": {"type": "string"},
                "restrictionLevel": {"type": "integer"},
                "overageNotified": {"type": "boolean"},
                "createdAt": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "UsageSnapshot": {
            "type": "object",
            "properties": {
                "ownerId": {"type": "string"},
                "usedBytes": {"type": "integer"},
                "quotaBytes": {"type": "integer"},
                "availableBytes": {"type": "integer"},
                "usagePercent": {"type": "number"},
                "isPremium": {"type": "boolean"},
                "restrictionLevel": {"type": "integer"},
                "inGracePeriod": {"type": "boolean"},
                "generatedAt": {"type": "string"}
            }
        },
        "BeginUploadRequest": {
            "type": "object",
            "properties": {
                "ownerId": {"type": "string"},
                "filename": {"type": "string"},
                "totalSizeBytes": {"type": "integer"},
                "chunkSizeBytes": {"type": "integer"},
                "priority": {"type": "integer", "minimum": 1, "maximum": 4}
            },
            "required": ["ownerId", "filename", "totalSizeBytes", "chunkSizeBytes"]
        },
        "StoredAsset": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "ownerId": {"type": "string"},
                "filename": {"type": "string"},
                "sizeBytes": {"type": "integer"},
                "status": {"type": "string"},
                "priority": {"type": "integer"},
                "createdAt": {"type": "string"},
                "lastAccessedAt": {"type": "string"},
                "accessCount": {"type": "integer"},
                "archivedAt": {"type": "string"},
                "archiveExpiresAt": {"type": "string"}
            }
        },
        "MaintenanceOptions": {
            "type": "object",
            "properties": {
                "dryRun": {"type": "boolean"},
                "forceArchiving": {"type": "boolean"},
                "cleanupExpired": {"type": "boolean"}
            }
        },
        "MaintenanceReport": {
            "type": "object",
            "properties": {
                "accountsChecked": {"type": "integer"},
                "overageDetected": {"type": "integer"},
                "restrictionsEscalated": {"type": "integer"},
                "assetsArchived": {"type": "integer"},
                "assetsDeleted": {"type": "integer"},
                "sessionsExpired": {"type": "integer"},
                "dryRun": {"type": "boolean"},
                "startedAt": {"type": "string"},
                "finishedAt": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
