package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/relvet/relvet/config"
	"github.com/relvet/relvet/entities"
	"github.com/relvet/relvet/registry"
	"github.com/relvet/relvet/utils"
)

const (
	// Workflow-issued token, has the broader packages:write scope.
	GitHubTokenEnv = "GITHUB_TOKEN"
	// App-issued token, narrower scope. Used only when no workflow token is
	// supplied.
	GitHubAppTokenEnv = "GITHUB_APP_TOKEN"
	// Default explicit npm token variable, overridable via relvet.toml.
	NpmTokenEnv = "NPM_TOKEN"

	npmrcFileName = ".npmrc"
	npmrcTag      = "# relvet:registry-auth"

	defaultPingTimeout = 10 * time.Second
)

// Credential is the resolved authentication material for one registry.
type Credential struct {
	RegistryUrl string
	TokenEnv    string
	Token       string
	Oidc        bool
	source      string
}

// AuthContext is the immutable product of the authentication phase. It is
// threaded into pre-validation and dry-run explicitly, never through ambient
// process state, so the pipeline stays testable without environment resets.
type AuthContext struct {
	credentials map[string]Credential
	unreachable map[string]string
}

// CredentialFor looks up the credential of a registry URL by its classified
// hostname.
func (c *AuthContext) CredentialFor(registryUrl string) (Credential, bool) {
	credential, ok := c.credentials[registry.Hostname(registryOrDefault(registryUrl))]
	return credential, ok
}

// UnreachableReason returns the classified probe failure of a registry, if
// its reachability check failed.
func (c *AuthContext) UnreachableReason(registryUrl string) (string, bool) {
	reason, ok := c.unreachable[registry.Hostname(registryOrDefault(registryUrl))]
	return reason, ok
}

// Authenticator establishes credentials for every distinct registry
// referenced by the resolved targets of a run.
type Authenticator struct {
	// Env is the token store lookup, os.Getenv in production.
	Env         func(string) string
	Runner      utils.CmdRunner
	Masker      *utils.SecretMasker
	Conf        *config.Config
	Log         utils.Log
	NpmrcPath   string
	PingTimeout time.Duration
	Retry       *utils.RetryPolicy
}

func NewAuthenticator(conf *config.Config, runner utils.CmdRunner, masker *utils.SecretMasker, log utils.Log) *Authenticator {
	if log == nil {
		log = &utils.NullLog{}
	}
	if masker == nil {
		masker = utils.NewSecretMasker()
	}
	if conf == nil {
		conf = &config.Config{}
	}
	return &Authenticator{
		Env:         os.Getenv,
		Runner:      runner,
		Masker:      masker,
		Conf:        conf,
		Log:         log,
		PingTimeout: defaultPingTimeout,
		Retry:       utils.NewRetryPolicy(3, time.Second, 8*time.Second, log),
	}
}

// Setup resolves credentials for all targets, validates token presence,
// probes reachability of custom registries and writes the npm credential
// file.
//
// Setup never fails the run: every problem is collected into the result so
// the orchestrator can skip only the affected registries.
func (a *Authenticator) Setup(targets []entities.ResolvedTarget) (*AuthContext, entities.AuthSetupResult) {
	context := &AuthContext{
		credentials: map[string]Credential{},
		unreachable: map[string]string{},
	}
	githubToken := a.resolveGitHubToken()
	a.collectTargetCredentials(context, targets, githubToken)
	a.collectConfiguredRegistries(context, githubToken)

	result := entities.AuthSetupResult{Success: true}
	a.validateTokensAvailable(context, &result)
	a.validateRegistriesReachable(context, &result)
	if err := a.writeCredentialFile(context); err != nil {
		// The npmrc is required by the registry clients; without it every
		// token-authenticated target would fail downstream anyway.
		a.Log.Error("Failed writing registry credentials file:", err.Error())
		result.Success = false
	}
	return context, result
}

func (a *Authenticator) resolveGitHubToken() Credential {
	if token := a.Env(GitHubTokenEnv); token != "" {
		a.Masker.Register(token)
		a.Log.Debug("Using the workflow-issued GitHub token for GitHub Packages.")
		return Credential{TokenEnv: registry.GitHubPackagesTokenEnv, Token: token, source: GitHubTokenEnv}
	}
	token := a.Env(GitHubAppTokenEnv)
	a.Masker.Register(token)
	if token != "" {
		a.Log.Debug("Using the app-issued GitHub token for GitHub Packages.")
	}
	return Credential{TokenEnv: registry.GitHubPackagesTokenEnv, Token: token, source: GitHubAppTokenEnv}
}

func (a *Authenticator) collectTargetCredentials(context *AuthContext, targets []entities.ResolvedTarget, githubToken Credential) {
	for _, target := range targets {
		if target.Protocol == entities.JsrProtocol {
			// JSR always authenticates via OIDC trusted publishing.
			continue
		}
		registryUrl := registryOrDefault(target.Registry)
		host := registry.Hostname(registryUrl)
		if _, exists := context.credentials[host]; exists {
			continue
		}
		switch registry.Classify(registryUrl) {
		case registry.NpmPublic:
			context.credentials[host] = a.resolveNpmCredential(registryUrl)
		case registry.GitHubPackages:
			credential := githubToken
			credential.RegistryUrl = registryUrl
			context.credentials[host] = credential
		default:
			tokenEnv := target.TokenEnv
			if tokenEnv == "" {
				tokenEnv = registry.TokenEnv(registryUrl)
			}
			token := a.Env(tokenEnv)
			a.Masker.Register(token)
			context.credentials[host] = Credential{
				RegistryUrl: registryUrl,
				TokenEnv:    tokenEnv,
				Token:       token,
				source:      tokenEnv,
			}
		}
	}
}

// resolveNpmCredential applies the token-overrides-OIDC rule: an explicitly
// supplied npm token disables OIDC eligibility, which keeps first-time
// publishes and environments without trusted publishing working.
func (a *Authenticator) resolveNpmCredential(registryUrl string) Credential {
	tokenEnv := a.Conf.NpmTokenEnv
	if tokenEnv == "" {
		tokenEnv = NpmTokenEnv
	}
	token := a.Env(tokenEnv)
	if token == "" && a.Conf.NpmTokenEnv == "" {
		// No explicit token anywhere: trusted publishing.
		return Credential{RegistryUrl: registryUrl, Oidc: true}
	}
	a.Masker.Register(token)
	a.Log.Debug("An npm token is configured; disabling OIDC for the public npm registry.")
	return Credential{RegistryUrl: registryUrl, TokenEnv: tokenEnv, Token: token, source: tokenEnv}
}

func (a *Authenticator) collectConfiguredRegistries(context *AuthContext, githubToken Credential) {
	for _, entry := range a.Conf.Registries {
		if entry.URL == "" {
			continue
		}
		host := registry.Hostname(entry.URL)
		if _, exists := context.credentials[host]; exists {
			continue
		}
		if entry.Auth != "" {
			a.Masker.Register(entry.Auth)
			context.credentials[host] = Credential{
				RegistryUrl: entry.URL,
				TokenEnv:    registry.TokenEnv(entry.URL),
				Token:       entry.Auth,
				source:      config.FileName,
			}
			continue
		}
		// Bare URL: reuse the resolved GitHub token.
		credential := githubToken
		credential.RegistryUrl = entry.URL
		credential.TokenEnv = registry.TokenEnv(entry.URL)
		context.credentials[host] = credential
	}
}

// validateTokensAvailable collects registries whose resolved token variable
// is empty. OIDC-eligible registries are skipped. Missing tokens are
// collected, never thrown, so other registries' results stay informative.
func (a *Authenticator) validateTokensAvailable(context *AuthContext, result *entities.AuthSetupResult) {
	missing := utils.NewStringSet()
	for _, credential := range context.credentials {
		if credential.Oidc || credential.Token != "" {
			continue
		}
		missing.Add(credential.TokenEnv)
		a.Log.Warn("No token found in", credential.TokenEnv, "for registry", registry.DisplayName(credential.RegistryUrl))
	}
	result.MissingTokens = missing.ToSortedSlice()
	if len(result.MissingTokens) > 0 {
		result.Success = false
	}
}

// validateRegistriesReachable probes every distinct non-OIDC, non-well-known
// npm-compatible registry once, regardless of how many targets reference it.
// GitHub Packages is trusted without a probe.
func (a *Authenticator) validateRegistriesReachable(context *AuthContext, result *entities.AuthSetupResult) {
	for host, credential := range context.credentials {
		if credential.Oidc {
			continue
		}
		if registry.Classify(credential.RegistryUrl) == registry.GitHubPackages {
			continue
		}
		if reason := a.pingRegistry(credential.RegistryUrl); reason != "" {
			context.unreachable[host] = reason
			result.UnreachableRegistries = append(result.UnreachableRegistries, entities.UnreachableRegistry{
				Registry: credential.RegistryUrl,
				Reason:   reason,
			})
			result.Success = false
		}
	}
}

// pingRegistry runs the registry's own ping command under a hard timeout and
// returns a classified failure reason, or empty on success. Transient
// failures are retried with backoff before being reported.
func (a *Authenticator) pingRegistry(registryUrl string) string {
	timeout := a.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	var output string
	operation := func() error {
		stdout, stderr, err := a.Runner.Run("", timeout, "npm", "ping", "--registry", registryUrl)
		output = strings.TrimSpace(string(stdout) + "\n" + string(stderr))
		return err
	}
	var err error
	if a.Retry != nil {
		err = a.Retry.Do(operation)
	} else {
		err = operation()
	}
	if err == nil {
		a.Log.Debug("Registry", registry.DisplayName(registryUrl), "is reachable.")
		return ""
	}
	reason := ClassifyRegistryFailure(output + "\n" + err.Error())
	a.Log.Warn("Registry", registry.DisplayName(registryUrl), "is unreachable:", reason)
	return reason
}

// writeCredentialFile appends missing auth entries to the npm credentials
// file. Entries are tagged with an identifying comment and existing content
// is never overwritten, so repeated runs stay idempotent and human-diffable.
func (a *Authenticator) writeCredentialFile(context *AuthContext) error {
	var lines []string
	existing := ""
	path, err := a.npmrcPath()
	if err != nil {
		return err
	}
	if data, err := os.ReadFile(path); err == nil {
		existing = string(data)
	} else if !os.IsNotExist(err) {
		return err
	}
	for _, credential := range context.credentials {
		if credential.Oidc || credential.Token == "" {
			continue
		}
		line := credentialLine(credential.RegistryUrl, credential.Token)
		if strings.Contains(existing, line) {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil
	}
	block := npmrcTag + "\n" + strings.Join(lines, "\n") + "\n"
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		block = "\n" + block
	}
	a.Log.Debug("Appending", fmt.Sprint(len(lines)), "registry auth entries to", path)
	return utils.AppendToFile(path, block)
}

func (a *Authenticator) npmrcPath() (string, error) {
	if a.NpmrcPath != "" {
		return a.NpmrcPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, npmrcFileName), nil
}

// credentialLine formats one npm-style credential entry:
// //registry.host/path/:_authToken=TOKEN
func credentialLine(registryUrl, token string) string {
	trimmed := strings.TrimPrefix(registryUrl, "https:")
	trimmed = strings.TrimPrefix(trimmed, "http:")
	if !strings.HasSuffix(trimmed, "/") {
		trimmed += "/"
	}
	return trimmed + ":_authToken=" + token
}
