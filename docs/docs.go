// Package docs registra a documentação OpenAPI servida em /swagger.
// Regenerar com: swag init -g cmd/api/docs.go -o docs
package docs

import "github.com/swaggo/swag"

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
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Autentica um usuário",
                "parameters": [{"in": "body", "name": "login", "required": true, "schema": {"$ref": "#/definitions/dto.LoginRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.LoginResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/auth/refresh-token": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Renova um token JWT",
                "parameters": [{"in": "body", "name": "refresh", "required": true, "schema": {"$ref": "#/definitions/dto.RefreshTokenRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.LoginResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Retorna informações do usuário atual",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.UserResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/chats": {
            "get": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["chats"],
                "summary": "Lista chats",
                "parameters": [
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.ChatListResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/chats/{chatId}": {
            "get": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["chats"],
                "summary": "Busca um chat",
                "parameters": [{"type": "string", "name": "chatId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.ChatResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"Bearer": []}],
                "tags": ["chats"],
                "summary": "Remove um chat",
                "parameters": [{"type": "string", "name": "chatId", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/chats/{chatId}/messages": {
            "get": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["chats"],
                "summary": "Lista as mensagens de um chat",
                "parameters": [{"type": "string", "name": "chatId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/dto.MessageResponse"}}}
                }
            }
        },
        "/chats/{chatId}/visibility": {
            "patch": {
                "security": [{"Bearer": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["chats"],
                "summary": "Altera a visibilidade de um chat",
                "parameters": [
                    {"type": "string", "name": "chatId", "in": "path", "required": true},
                    {"in": "body", "name": "visibility", "required": true, "schema": {"$ref": "#/definitions/dto.VisibilityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.ChatResponse"}}
                }
            }
        },
        "/chats/{chatId}/stream": {
            "get": {
                "security": [{"Bearer": []}],
                "produces": ["text/event-stream"],
                "tags": ["stream"],
                "summary": "Conecta ao stream de um chat",
                "parameters": [
                    {"type": "string", "name": "chatId", "in": "path", "required": true},
                    {"type": "integer", "name": "Last-Event-ID", "in": "header"},
                    {"type": "string", "name": "X-Stream-Id", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "stream SSE", "schema": {"type": "string"}},
                    "204": {"description": "No Content"}
                }
            },
            "post": {
                "security": [{"Bearer": []}],
                "consumes": ["application/json"],
                "produces": ["text/event-stream"],
                "tags": ["stream"],
                "summary": "Envia uma mensagem e transmite a resposta",
                "parameters": [
                    {"type": "string", "name": "chatId", "in": "path", "required": true},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.StreamRequest"}}
                ],
                "responses": {
                    "200": {"description": "stream SSE", "schema": {"type": "string"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"type": "string"}}
                }
            }
        },
        "/chats/{chatId}/stream/status": {
            "get": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["stream"],
                "summary": "Estado do stream de um chat",
                "parameters": [{"type": "string", "name": "chatId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.StreamStatusResponse"}}
                }
            }
        }
    },
    "definitions": {
        "dto.ErrorResponse": {
            "type": "object",
            "properties": {"code": {"type": "integer"}, "message": {"type": "string"}, "details": {"type": "string"}}
        },
        "dto.LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {"email": {"type": "string"}, "password": {"type": "string"}, "company_id": {"type": "string"}}
        },
        "dto.LoginResponse": {
            "type": "object",
            "properties": {
                "user": {"$ref": "#/definitions/dto.UserResponse"},
                "access_token": {"type": "string"},
                "refresh_token": {"type": "string"},
                "expires_at": {"type": "string"}
            }
        },
        "dto.RefreshTokenRequest": {
            "type": "object",
            "required": ["refresh_token"],
            "properties": {"refresh_token": {"type": "string"}}
        },
        "dto.UserResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "company_id": {"type": "string"},
                "name": {"type": "string"},
                "email": {"type": "string"},
                "role": {"type": "string"},
                "status": {"type": "string"},
                "last_login_at": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "dto.StreamRequest": {
            "type": "object",
            "properties": {"message": {"type": "string"}, "companyId": {"type": "string"}}
        },
        "dto.VisibilityRequest": {
            "type": "object",
            "required": ["visibility"],
            "properties": {"visibility": {"type": "string", "enum": ["private", "shared"]}}
        },
        "dto.ChatResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "company_id": {"type": "string"},
                "user_id": {"type": "string"},
                "visibility": {"type": "string"},
                "title": {"type": "string"},
                "generating": {"type": "boolean"},
                "last_activity_at": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "dto.ChatListResponse": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/dto.ChatResponse"}},
                "page": {"type": "integer"},
                "page_size": {"type": "integer"}
            }
        },
        "dto.MessageResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "role": {"type": "string"},
                "content": {"type": "string"},
                "metadata": {"type": "object", "additionalProperties": {"type": "string"}},
                "created_at": {"type": "string"}
            }
        },
        "dto.StreamStatusResponse": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean"},
                "status": {"type": "string"},
                "streamId": {"type": "string"},
                "lastEventId": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "Bearer": {
            "description": "Cabeçalho de autenticação JWT usando o esquema Bearer. Exemplo: \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo contém as informações exportadas da documentação
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "CompanyChat API",
	Description:      "API de chat com o assistente financeiro, com respostas transmitidas via Server-Sent Events",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
