package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/relvet/relvet/config"
	"github.com/relvet/relvet/entities"
	"github.com/relvet/relvet/publish"
	"github.com/relvet/relvet/sbom"
	"github.com/relvet/relvet/utils"
	"github.com/relvet/relvet/utils/cienv"
	clitool "github.com/urfave/cli/v2"
)

const (
	branchFlag         = "branch"
	packageManagerFlag = "package-manager"
	formatFlag         = "format"
	statsFlag          = "stats"
	sbomCheckFlag      = "sbom-check"
	summaryFlag        = "summary"

	cycloneDxXml  = "cyclonedx/xml"
	cycloneDxJson = "cyclonedx/json"
)

func GetCommands(logger utils.Log) []*clitool.Command {
	validateFlags := []clitool.Flag{
		&clitool.StringFlag{
			Name:  branchFlag,
			Usage: "Target branch the pending version bumps are computed against.",
			Value: "main",
		},
		&clitool.StringFlag{
			Name:  packageManagerFlag,
			Usage: "Package manager of the workspace (npm, pnpm or yarn).",
			Value: "npm",
		},
		&clitool.BoolFlag{
			Name:  statsFlag,
			Usage: "[Optional] Collect tarball size and file count per target.",
		},
		&clitool.BoolFlag{
			Name:  sbomCheckFlag,
			Usage: "[Optional] Validate SBOM generation for provenance-enabled targets.",
		},
		&clitool.BoolFlag{
			Name:  summaryFlag,
			Usage: "[Optional] Write the markdown summary to the CI job summary when available.",
		},
	}

	return []*clitool.Command{
		{
			Name:      "validate",
			Usage:     "Validate that every package with a pending version bump can be published",
			UsageText: "relvet validate [--branch main] [--package-manager npm]",
			Flags:     validateFlags,
			Action: func(context *clitool.Context) error {
				validator, err := newValidator(context, logger)
				if err != nil {
					return err
				}
				result, err := validator.Validate(context.String(packageManagerFlag), context.String(branchFlag))
				if err != nil {
					return err
				}
				if err := printResult(result); err != nil {
					return err
				}
				if err := emitSummary(context, result, logger); err != nil {
					return err
				}
				if !result.Success {
					return clitool.Exit("publish validation failed", 1)
				}
				return nil
			},
		},
		{
			Name:      "publish",
			Usage:     "Validate and publish every package with a pending version bump",
			UsageText: "relvet publish [--branch main] [--package-manager npm]",
			Flags:     validateFlags,
			Action: func(context *clitool.Context) error {
				validator, err := newValidator(context, logger)
				if err != nil {
					return err
				}
				result, err := validator.Validate(context.String(packageManagerFlag), context.String(branchFlag))
				if err != nil {
					return err
				}
				if err := emitSummary(context, result, logger); err != nil {
					return err
				}
				publisher := publish.NewPublisher(validator.Runner, logger)
				return publisher.PublishAll(result)
			},
		},
		{
			Name:      "sbom",
			Usage:     "Generate a CycloneDX SBOM for a package directory",
			UsageText: "relvet sbom [--format cyclonedx/json] [path]",
			Flags: []clitool.Flag{
				&clitool.StringFlag{
					Name:  formatFlag,
					Usage: fmt.Sprintf("[Optional] Output format. Supported values are '%s' and '%s'.", cycloneDxJson, cycloneDxXml),
					Value: cycloneDxJson,
				},
			},
			Action: func(context *clitool.Context) error {
				dir := context.Args().First()
				if dir == "" {
					dir = "."
				}
				generator := sbom.NewGenerator(utils.NewExecRunner(logger), logger)
				bom, err := generator.Generate(dir)
				if err != nil {
					return err
				}
				return printBom(bom, context.String(formatFlag))
			},
		},
	}
}

func newValidator(context *clitool.Context, logger utils.Log) (*publish.Validator, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	conf, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}
	runner := utils.NewExecRunner(logger)
	validator := publish.NewValidator(
		&changesetCli{runner: runner, log: logger},
		&workspaceDirs{root: workDir, log: logger},
		conf,
		runner,
		logger,
	)
	validator.CollectStats = context.Bool(statsFlag)
	if context.Bool(sbomCheckFlag) {
		generator := sbom.NewGenerator(runner, logger)
		validator.SbomCheck = func(directory string) error {
			_, err := generator.Generate(directory)
			return err
		}
	}
	if cienv.IsGitHubActions() {
		validator.Auth.Masker.OnRegister = func(secret string) {
			cienv.AddMask(os.Stdout, secret)
		}
		if !cienv.HasOidcToken() {
			logger.Warn("The workflow job cannot mint OIDC tokens (missing 'id-token: write' permission); trusted publishing will not be available.")
		}
	}
	return validator, nil
}

func printResult(result *entities.PublishValidationResult) error {
	content, err := json.Marshal(result)
	if err != nil {
		return err
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, content, "", "  "); err != nil {
		return err
	}
	fmt.Println(indented.String())
	return nil
}

func emitSummary(context *clitool.Context, result *entities.PublishValidationResult, logger utils.Log) error {
	if !context.Bool(summaryFlag) {
		return nil
	}
	markdown := publish.BuildSummary(result)
	path := cienv.StepSummaryPath()
	if path == "" {
		logger.Output(markdown)
		return nil
	}
	return utils.AppendToFile(path, markdown)
}

func printBom(bom *cdx.BOM, format string) error {
	fileFormat := cdx.BOMFileFormatJSON
	if format == cycloneDxXml {
		fileFormat = cdx.BOMFileFormatXML
	}
	encoder := cdx.NewBOMEncoder(os.Stdout, fileFormat)
	encoder.SetPretty(true)
	return encoder.Encode(bom)
}
