// Package file loads docqa configuration from a TOML file.
//
// Values are resolved in order: built-in defaults, the config file, a .env
// file in the working directory, then environment variables. A missing
// config file is not an error.
package file
