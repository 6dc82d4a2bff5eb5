package main

// General API documentation for swaggo. Run `swag init -g cmd/visiond/docs.go -o docs` to regenerate.
//
// @title           visiond API
// @version         1.0
// @description     HTTP API for camera-driven vision and speech tasks and their model cache.
//
// @contact.name   visiond maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
