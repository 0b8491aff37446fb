package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Course API",
        "description": "Cross-campus course listing and enrollment. Each node owns one campus shard and federates the others.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "tags": [
        {"name": "Courses", "description": "Course listing and administration"},
        {"name": "Enrollments", "description": "Selecting and deselecting courses"},
        {"name": "Selection Window", "description": "Global course selection window"},
        {"name": "Users", "description": "User purge across campuses"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check against the directory and shard stores",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A store is unreachable"}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "summary": "Node counters",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List courses across campuses",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "campus", "in": "query", "type": "string", "required": true, "description": "Comma separated campus letters, e.g. A,B"},
                    {"name": "course", "in": "query", "type": "string", "description": "Course id, or a name substring"},
                    {"name": "teacher", "in": "query", "type": "string", "description": "Teacher id, or a name substring"},
                    {"name": "only_not_full", "in": "query", "type": "boolean"},
                    {"name": "only_selected", "in": "query", "type": "boolean", "description": "Students only"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/CourseQueryResult"}},
                    "400": {"description": "Invalid filter", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Create a course on the named campus",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateCourseRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/CreateCourseResponse"}},
                    "404": {"description": "Teacher not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Id conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/courses/{id}": {
            "put": {
                "tags": ["Courses"],
                "summary": "Update a course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateCourseRequest"}}
                ],
                "responses": {
                    "204": {"description": "Updated"},
                    "409": {"description": "Capacity below enrolled count", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Courses"],
                "summary": "Delete a course and its enrollments",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Course not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/courses/{id}/students": {
            "get": {
                "tags": ["Courses"],
                "summary": "List students enrolled in a course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/CourseStudentsResult"}}
                }
            }
        },
        "/api/v1/courses/{id}/select": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Select a course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "stu_id", "in": "query", "type": "integer", "description": "Required for admins, ignored for students"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/EnrollmentResponse"}},
                    "403": {"description": "Selection window closed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Course full or already selected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/courses/{id}/deselect": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Deselect a course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "stu_id", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/EnrollmentResponse"}},
                    "409": {"description": "Course not selected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/selection-window": {
            "get": {
                "tags": ["Selection Window"],
                "summary": "Current selection window",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SelectionWindowResponse"}}
                }
            },
            "put": {
                "tags": ["Selection Window"],
                "summary": "Replace the selection window",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SelectionWindowRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SelectionWindowResponse"}}
                }
            }
        },
        "/api/v1/users/{id}": {
            "delete": {
                "tags": ["Users"],
                "summary": "Delete a user's course data on every campus",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "202": {"description": "Local purge done, peers queued", "schema": {"$ref": "#/definitions/PurgeUserResponse"}}
                }
            }
        }
    },
    "definitions": {
        "CourseRow": {
            "type": "object",
            "properties": {
                "course_id": {"type": "integer"},
                "teachers": {"type": "string"},
                "name": {"type": "string"},
                "capacity": {"type": "integer"},
                "num_selected": {"type": "integer"},
                "campus": {"type": "string"},
                "is_selected": {"type": "boolean"}
            }
        },
        "CourseQueryResult": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/CourseRow"}}
            }
        },
        "Student": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "name": {"type": "string"},
                "sex": {"type": "string"},
                "age": {"type": "integer"},
                "current_campus": {"type": "string"}
            }
        },
        "CourseStudentsResult": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/Student"}}
            }
        },
        "CreateCourseRequest": {
            "type": "object",
            "required": ["name", "capacity", "teacher_ids", "campus"],
            "properties": {
                "name": {"type": "string"},
                "capacity": {"type": "integer"},
                "teacher_ids": {"type": "array", "items": {"type": "integer"}},
                "campus": {"type": "string", "enum": ["A", "B", "C"]}
            }
        },
        "UpdateCourseRequest": {
            "type": "object",
            "required": ["name", "capacity", "teacher_ids"],
            "properties": {
                "name": {"type": "string"},
                "capacity": {"type": "integer"},
                "teacher_ids": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "CreateCourseResponse": {
            "type": "object",
            "properties": {
                "course_id": {"type": "integer"}
            }
        },
        "EnrollmentResponse": {
            "type": "object",
            "properties": {
                "course_id": {"type": "integer"},
                "student_id": {"type": "integer"}
            }
        },
        "SelectionWindowRequest": {
            "type": "object",
            "required": ["begin", "end"],
            "properties": {
                "begin": {"type": "string", "format": "date-time"},
                "end": {"type": "string", "format": "date-time"}
            }
        },
        "SelectionWindowResponse": {
            "type": "object",
            "properties": {
                "begin": {"type": "string", "format": "date-time"},
                "end": {"type": "string", "format": "date-time"},
                "open": {"type": "boolean"}
            }
        },
        "PurgeUserResponse": {
            "type": "object",
            "properties": {
                "user_id": {"type": "integer"},
                "role": {"type": "string"},
                "peers_queued": {"type": "array", "items": {"type": "string"}}
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
