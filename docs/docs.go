// Package docs registers the OpenAPI description served at /api/swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/register": {
            "post": {
                "description": "Create a new account",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Register",
                "parameters": [
                    {
                        "description": "Registration request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object",
                            "properties": {
                                "email": {"type": "string"},
                                "password": {"type": "string"},
                                "username": {"type": "string"}
                            }
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "email": {"type": "string"},
                                "id": {"type": "integer"},
                                "username": {"type": "string"}
                            }
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {"$ref": "#/definitions/models.ErrorResponse"}
                    }
                }
            }
        },
        "/token": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Obtain a token pair",
                "parameters": [
                    {
                        "description": "Credentials",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object",
                            "properties": {
                                "password": {"type": "string"},
                                "username": {"type": "string"}
                            }
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "access": {"type": "string"},
                                "refresh": {"type": "string"}
                            }
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {"$ref": "#/definitions/models.ErrorResponse"}
                    }
                }
            }
        },
        "/token/refresh": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Exchange a refresh token for a new access token",
                "parameters": [
                    {
                        "description": "Refresh token",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object",
                            "properties": {
                                "refresh": {"type": "string"}
                            }
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "access": {"type": "string"}
                            }
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {"$ref": "#/definitions/models.ErrorResponse"}
                    }
                }
            }
        },
        "/boards": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["boards"],
                "summary": "List boards",
                "parameters": [
                    {"type": "integer", "description": "Page number", "name": "page", "in": "query"},
                    {"type": "string", "description": "Matches title, content and author username", "name": "search", "in": "query"},
                    {"type": "string", "description": "id, post_date, recommend_count; prefix - for descending", "name": "ordering", "in": "query"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "count": {"type": "integer"},
                                "next": {"type": "string"},
                                "previous": {"type": "string"},
                                "results": {
                                    "type": "array",
                                    "items": {"$ref": "#/definitions/models.Board"}
                                }
                            }
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {"$ref": "#/definitions/models.ErrorResponse"}
                    }
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["boards"],
                "summary": "Create a board",
                "parameters": [
                    {
                        "description": "Board",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object",
                            "properties": {
                                "content": {"type": "string"},
                                "cost": {"type": "string"},
                                "title": {"type": "string"}
                            }
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {"$ref": "#/definitions/models.Board"}
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {"$ref": "#/definitions/models.ErrorResponse"}
                    }
                }
            }
        },
        "/boards/{id}/like": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["boards"],
                "summary": "Recommend a board",
                "parameters": [
                    {"type": "integer", "description": "Board ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "detail": {"type": "string"},
                                "recommend_count": {"type": "integer"}
                            }
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {"$ref": "#/definitions/models.ErrorResponse"}
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {"$ref": "#/definitions/models.ErrorResponse"}
                    }
                }
            }
        },
        "/s3-presigned-upload": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Returns a PUT URL for the object store and the public URL the object will have.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["media"],
                "summary": "Presign a direct upload",
                "parameters": [
                    {
                        "description": "Upload target",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object",
                            "properties": {
                                "file_name": {"type": "string"},
                                "file_type": {"type": "string"}
                            }
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/service.PresignResult"}
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {"$ref": "#/definitions/models.ErrorResponse"}
                    },
                    "403": {
                        "description": "Forbidden",
                        "schema": {"$ref": "#/definitions/models.ErrorResponse"}
                    }
                }
            }
        }
    },
    "definitions": {
        "models.Board": {
            "type": "object",
            "properties": {
                "author": {"type": "integer"},
                "author_username": {"type": "string"},
                "content": {"type": "string"},
                "cost": {"type": "string"},
                "id": {"type": "integer"},
                "images": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/models.Image"}
                },
                "post_date": {"type": "string"},
                "recommend_count": {"type": "integer"},
                "recommended_by_me": {"type": "boolean"},
                "replies": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/models.Reply"}
                },
                "title": {"type": "string"}
            }
        },
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "details": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "models.Image": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "image": {"type": "string"},
                "uploaded_at": {"type": "string"}
            }
        },
        "models.Reply": {
            "type": "object",
            "properties": {
                "author": {"type": "integer"},
                "author_username": {"type": "string"},
                "children": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/models.Reply"}
                },
                "comment": {"type": "string"},
                "created_at": {"type": "string"},
                "id": {"type": "integer"},
                "parent": {"type": "integer"}
            }
        },
        "service.PresignResult": {
            "type": "object",
            "properties": {
                "s3_url": {"type": "string"},
                "url": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8000",
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "CarKey API",
	Description:      "Car damage community API: boards, feedback, notices, replies, notifications and image uploads",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
