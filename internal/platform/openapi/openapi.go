package openapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Generator builds the OpenAPI 3.0 document for the patient and auth APIs.
type Generator struct {
	version string
	baseURL string
}

func NewGenerator(version, baseURL string) *Generator {
	return &Generator{version: version, baseURL: baseURL}
}

// Document produces the OpenAPI 3.0 document as a map.
func (g *Generator) Document() map[string]interface{} {
	idParam := []map[string]interface{}{
		{"name": "id", "in": "path", "required": true, "schema": map[string]string{"type": "string", "format": "uuid"}},
	}
	bearer := []map[string][]string{{"bearerAuth": {}}}

	paths := map[string]interface{}{
		"/patients": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "List patients",
				"operationId": "listPatients",
				"tags":        []string{"Patient"},
				"security":    bearer,
				"responses": map[string]interface{}{
					"200": arrayResponse("Patients", "#/components/schemas/PatientResponse"),
					"401": errorResponse("Missing or invalid token"),
				},
			},
			"post": map[string]interface{}{
				"summary":     "Create a patient and provision a billing account",
				"operationId": "createPatient",
				"tags":        []string{"Patient"},
				"security":    bearer,
				"requestBody": requestBody("#/components/schemas/PatientRequest"),
				"responses": map[string]interface{}{
					"201": response("Created", "#/components/schemas/PatientResponse"),
					"400": errorResponse("Validation failed or email already exists"),
					"401": errorResponse("Missing or invalid token"),
					"502": errorResponse("Patient stored but billing account could not be provisioned"),
				},
			},
		},
		"/patients/{id}": map[string]interface{}{
			"put": map[string]interface{}{
				"summary":     "Update a patient",
				"operationId": "updatePatient",
				"tags":        []string{"Patient"},
				"security":    bearer,
				"parameters":  idParam,
				"requestBody": requestBody("#/components/schemas/PatientRequest"),
				"responses": map[string]interface{}{
					"200": response("Updated", "#/components/schemas/PatientResponse"),
					"400": errorResponse("Validation failed or email already exists"),
					"404": errorResponse("Patient not found"),
				},
			},
			"delete": map[string]interface{}{
				"summary":     "Delete a patient",
				"operationId": "deletePatient",
				"tags":        []string{"Patient"},
				"security":    bearer,
				"parameters":  idParam,
				"responses": map[string]interface{}{
					"204": map[string]interface{}{"description": "Deleted, or no such patient"},
					"400": errorResponse("Malformed id"),
				},
			},
		},
		"/auth/login": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Exchange credentials for a bearer token",
				"operationId": "login",
				"tags":        []string{"Auth"},
				"requestBody": requestBody("#/components/schemas/LoginRequest"),
				"responses": map[string]interface{}{
					"200": response("Token issued", "#/components/schemas/LoginResponse"),
					"401": map[string]interface{}{"description": "Invalid credentials"},
				},
			},
		},
		"/auth/validate": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Check a bearer token",
				"operationId": "validateToken",
				"tags":        []string{"Auth"},
				"security":    bearer,
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Token is valid"},
					"401": map[string]interface{}{"description": "Token is missing, malformed or expired"},
				},
			},
		},
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Patient Service API",
			"version":     g.version,
			"description": "Patient records with billing provisioning and lifecycle events",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": buildComponentSchemas(),
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]string{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
	}
}

func requestBody(schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{"$ref": schemaRef},
			},
		},
	}
}

func response(description, schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{"$ref": schemaRef},
			},
		},
	}
}

func arrayResponse(description, itemRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"$ref": itemRef},
				},
			},
		},
	}
}

func errorResponse(description string) map[string]interface{} {
	return response(description, "#/components/schemas/Error")
}

func stringProp(format string) map[string]interface{} {
	p := map[string]interface{}{"type": "string"}
	if format != "" {
		p["format"] = format
	}
	return p
}

func buildComponentSchemas() map[string]interface{} {
	return map[string]interface{}{
		"PatientRequest": map[string]interface{}{
			"type":     "object",
			"required": []string{"name", "email", "address", "dateOfBirth"},
			"properties": map[string]interface{}{
				"name":           map[string]interface{}{"type": "string", "maxLength": 100},
				"email":          stringProp("email"),
				"address":        stringProp(""),
				"dateOfBirth":    stringProp("date"),
				"registeredDate": map[string]interface{}{"type": "string", "format": "date", "description": "Required on create"},
			},
		},
		"PatientResponse": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":             stringProp("uuid"),
				"name":           stringProp(""),
				"email":          stringProp("email"),
				"address":        stringProp(""),
				"dateOfBirth":    stringProp("date"),
				"registeredDate": stringProp("date"),
			},
		},
		"LoginRequest": map[string]interface{}{
			"type":     "object",
			"required": []string{"email", "password"},
			"properties": map[string]interface{}{
				"email":    stringProp("email"),
				"password": stringProp("password"),
			},
		},
		"LoginResponse": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"token": stringProp(""),
			},
		},
		"Error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message": map[string]interface{}{
					"description": "A message, or a map of field name to message for validation failures",
					"oneOf": []map[string]interface{}{
						{"type": "string"},
						{"type": "object", "additionalProperties": map[string]string{"type": "string"}},
					},
				},
			},
		},
	}
}

// DocsCSP is the Content-Security-Policy the /docs page needs to load
// Swagger UI from unpkg and fetch /openapi.json.
const DocsCSP = "default-src 'none'; script-src https://unpkg.com 'unsafe-inline'; " +
	"style-src https://unpkg.com 'unsafe-inline'; img-src 'self' data:; connect-src 'self'; frame-ancestors 'none'"

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Patient Service API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`

// RegisterRoutes serves the document at /openapi.json and a Swagger UI at /docs.
func (g *Generator) RegisterRoutes(e *echo.Echo) {
	e.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.Document())
	})
	e.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
