// Package docs holds the OpenAPI document of the admin API, served under /swagger.
// Regenerate it from the handler annotations with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag/v2"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/customs/conversions": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["customs"],
                "summary": "Convert a USD minimum valuation",
                "parameters": [
                    {"description": "Amount and origin country", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.ConvertRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/customs/conversions/batch": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["customs"],
                "summary": "Convert several USD amounts",
                "parameters": [
                    {"description": "Conversions", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.ConvertBatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/customs/conversions/validate": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["customs"],
                "summary": "Validate a converted amount",
                "parameters": [
                    {"description": "Expected conversion", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.ValidateConversionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/customs/quotes/taxes": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["customs"],
                "summary": "Calculate the taxes of a quote",
                "parameters": [
                    {"description": "Quote", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.QuoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/customs/exchange-rate-cache": {
            "get": {
                "produces": ["application/json"],
                "tags": ["customs"],
                "summary": "Exchange rate cache statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["customs"],
                "summary": "Clear the exchange rate cache",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/customs/batches": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["batches"],
                "summary": "Start a quote batch run",
                "parameters": [
                    {"description": "Quotes and run options", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.StartBatchRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/customs/batches/current": {
            "get": {
                "produces": ["application/json"],
                "tags": ["batches"],
                "summary": "Progress of the latest batch run",
                "parameters": [
                    {"type": "string", "description": "quotes to include per-quote results", "name": "include", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/customs/batches/current/cancel": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["batches"],
                "summary": "Cancel the running batch",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/system/info": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "System information",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}}}
            }
        },
        "/system/ping": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}}}
            }
        },
        "/system/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Dependency health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/system/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Background job status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}}}
            }
        }
    },
    "definitions": {
        "dto.ConvertRequest": {
            "type": "object",
            "required": ["origin_country", "usd_amount"],
            "properties": {
                "origin_country": {"type": "string"},
                "rounding_method": {"type": "string", "enum": ["up", "down", "nearest"]},
                "usd_amount": {"type": "string"}
            }
        },
        "dto.ConvertBatchEntry": {
            "type": "object",
            "required": ["item_id", "origin_country", "usd_amount"],
            "properties": {
                "item_id": {"type": "string"},
                "origin_country": {"type": "string"},
                "usd_amount": {"type": "string"}
            }
        },
        "dto.ConvertBatchRequest": {
            "type": "object",
            "required": ["conversions"],
            "properties": {
                "conversions": {"type": "array", "maxItems": 500, "minItems": 1, "items": {"$ref": "#/definitions/dto.ConvertBatchEntry"}},
                "rounding_method": {"type": "string", "enum": ["up", "down", "nearest"]}
            }
        },
        "dto.ValidateConversionRequest": {
            "type": "object",
            "required": ["expected_amount", "origin_country", "usd_amount"],
            "properties": {
                "expected_amount": {"type": "string"},
                "origin_country": {"type": "string"},
                "tolerance_pct": {"type": "string"},
                "usd_amount": {"type": "string"}
            }
        },
        "dto.QuoteItemInput": {
            "type": "object",
            "required": ["classification_code", "id", "price_origin_currency"],
            "properties": {
                "classification_code": {"type": "string"},
                "id": {"type": "string"},
                "name": {"type": "string"},
                "price_origin_currency": {"type": "string"}
            }
        },
        "dto.QuoteRequest": {
            "type": "object",
            "required": ["destination_country", "id", "items", "origin_country"],
            "properties": {
                "destination_country": {"type": "string"},
                "id": {"type": "string", "maxLength": 128},
                "items": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/dto.QuoteItemInput"}},
                "origin_country": {"type": "string"},
                "regime_overrides": {"type": "object", "additionalProperties": {"type": "string"}},
                "rounding_method": {"type": "string", "enum": ["up", "down", "nearest"]}
            }
        },
        "dto.StartBatchRequest": {
            "type": "object",
            "required": ["quotes"],
            "properties": {
                "concurrency": {"type": "integer", "maximum": 1000, "minimum": 1},
                "quotes": {"type": "array", "items": {"$ref": "#/definitions/dto.QuoteRequest"}},
                "retry_attempts": {"type": "integer", "maximum": 10, "minimum": 0},
                "retry_delay": {"type": "string"}
            }
        },
        "dto.ErrorInfo": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "request_id": {"type": "string"},
                "details": {"type": "array", "items": {"$ref": "#/definitions/dto.ValidationDetail"}}
            }
        },
        "dto.ValidationDetail": {
            "type": "object",
            "properties": {
                "field": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "dto.Response": {
            "type": "object",
            "properties": {
                "data": {},
                "error": {"$ref": "#/definitions/dto.ErrorInfo"},
                "success": {"type": "boolean"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Operator token. Format: \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Customs Valuation Engine API",
	Description:      "Minimum valuation conversion, per-item customs and VAT calculation, and quote batch runs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
