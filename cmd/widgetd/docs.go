package main

// General API documentation for swaggo.
// Regenerate with: swag init -g cmd/widgetd/docs.go -o docs
//
// @title           widgetd API
// @version         1.0
// @description     HTTP API for Jupyter widget state synchronization and persistence.
//
// @contact.name   widgetd maintainers
// @contact.url    https://github.com/Caldeiraaf/ipywidgets
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
