// Package config resolves process configuration: editor URL, storage
// root, LLM provider credentials, and the LLM bridge's retry tunables.
//
// Load merges, in increasing priority:
//  1. built-in defaults (Default)
//  2. a global config file under GetPaths().Config (sidecar.json or
//     sidecar.jsonc, comments stripped via github.com/tidwall/jsonc)
//  3. a project config file under <directory>/.sidecar/
//  4. environment variable overrides (SIDECAR_MODEL, SIDECAR_EDITOR_URL,
//     SIDECAR_STORAGE_ROOT)
//
// Before any of that, a .env file in <directory> is loaded into the process
// environment (github.com/joho/godotenv); it does not replace variables that
// are already set. Provider API keys from the environment
// (ANTHROPIC_API_KEY, OPENAI_API_KEY) only fill in a provider whose key no
// config file set; a file-provided key wins over the environment.
package config
