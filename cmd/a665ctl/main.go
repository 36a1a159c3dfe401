package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/common"
	"example.com/arinc665/internal/compiler"
	"example.com/arinc665/internal/config"
	"example.com/arinc665/internal/files"
	"example.com/arinc665/internal/manifest"
	"example.com/arinc665/internal/media"
	"example.com/arinc665/internal/report"
	"example.com/arinc665/internal/validate"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

var commands = map[string]func(ctx context.Context, args []string) error{
	"print":            printCmd,
	"decompile":        decompileCmd,
	"validate":         validateCmd,
	"compile":          compileCmd,
	"report":           reportCmd,
	"manifest":         manifestCmd,
	"verify-signature": verifySignatureCmd,
	"partnumber":       partNumberCmd,
}

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cmd(ctx, os.Args[2:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		stop()
		os.Exit(1)
	}
}

func usage() {
	fmt.Printf(`a665ctl %s (built %s) <command> [options]

Commands:
  print      <file>...
  decompile  --in <media dir> [--desc <out.yaml>] [--no-integrity]
  validate   --in <media dir> [--out <diagnostics.jsonl>] [--acceptance <acceptance.json>] [--progress] [--metrics]
  compile    --desc <mediaset.yaml> --src <dir> --out <media dir> [--version supplement2|supplement345] [--load-headers <policy>] [--batch-files <policy>] [--audit <audit.jsonl>]
  report     --acceptance <acceptance.json> --pdf <out.pdf> [--manifest <manifest.json>] [--media-set <pn>] [--version <supplement>]
  manifest   --in <media dir> [--out <manifest.json>] [--algo sha256|blake3] [--sign --key <key.pem> --cert <cert.pem> --jws-out <file>]
  verify-signature --manifest <manifest.json> --jws <signature.jws> --cert <cert.pem>
  partnumber <manufacturer code> <product identifier> | --check <part number>

Every command accepts --config <a665.yaml>.
`, version, buildDate)
}

func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	cfgPath := fs.String("config", "", "tool configuration (YAML)")
	return fs, cfgPath
}

// setup loads the configuration and starts file logging. The returned closer
// is never nil.
func setup(cfgPath, name string) (config.Config, io.Closer, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.LoadConfig(cfgPath); err != nil {
			return cfg, nil, err
		}
	}
	closer, err := common.SetupLogging(cfg.Logs, name)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, closer, nil
}

func printCmd(_ context.Context, args []string) error {
	fs, _ := newFlagSet("print")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("required: at least one protocol file")
	}
	for i, path := range fs.Args() {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Println()
		}
		if err := files.Print(os.Stdout, filepath.Base(path), raw); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func decompile(ctx context.Context, in string, d *compiler.Decompiler) (*media.MediaSet, *compiler.DirSource, error) {
	src := &compiler.DirSource{Root: in}
	ms, _, err := d.Decompile(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	common.Logf("decompiled media set %s from %s (%d media)", ms.PartNumber(), in, ms.NumberOfMedia())
	return ms, src, nil
}

func printMediaSet(w io.Writer, ms *media.MediaSet) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "MEDIA SET\t%s\n", ms.PartNumber())
	fmt.Fprintf(tw, "MEDIA\t%d\n", ms.NumberOfMedia())
	fmt.Fprintln(tw, "\nMEDIUM\tKIND\tPATH\tPART NUMBER")
	for _, f := range ms.Files() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Medium(), f.Kind(), f.Path(), f.PartNumber())
	}
	tw.Flush()
}

func decompileCmd(ctx context.Context, args []string) error {
	fs, cfgPath := newFlagSet("decompile")
	in := fs.String("in", "", "directory holding the MEDIUM_nnn directories")
	descOut := fs.String("desc", "", "write the media set description (YAML)")
	noIntegrity := fs.Bool("no-integrity", false, "skip file CRC and check value verification")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("required: --in")
	}
	cfg, closer, err := setup(*cfgPath, "decompile")
	if err != nil {
		return err
	}
	defer closer.Close()

	ms, _, err := decompile(ctx, *in, &compiler.Decompiler{CheckFileIntegrity: cfg.CheckFileIntegrity && !*noIntegrity})
	if err != nil {
		return err
	}
	printMediaSet(os.Stdout, ms)
	if *descOut != "" {
		if err := config.Describe(ms).Save(*descOut); err != nil {
			return err
		}
		fmt.Println("Wrote", *descOut)
	}
	return nil
}

// mediaSetVersion reports the supplement of the first file list, or "" when
// it cannot be read.
func mediaSetVersion(src compiler.Source) string {
	raw, err := src.ReadFile(1, "/"+arinc665.ListOfFilesName)
	if err != nil {
		return ""
	}
	_, v, err := files.Detect(raw)
	if err != nil {
		return ""
	}
	return v.String()
}

func directorySize(root string) int64 {
	var total int64
	filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

func validateCmd(ctx context.Context, args []string) error {
	fs, cfgPath := newFlagSet("validate")
	in := fs.String("in", "", "directory holding the MEDIUM_nnn directories")
	outDiag := fs.String("out", "diagnostics.jsonl", "diagnostics output")
	outAcc := fs.String("acceptance", "acceptance_report.json", "acceptance json")
	metricsFlag := fs.Bool("metrics", false, "print validation throughput metrics")
	progressFlag := fs.Bool("progress", false, "display validation progress updates")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("required: --in")
	}
	_, closer, err := setup(*cfgPath, "validate")
	if err != nil {
		return err
	}
	defer closer.Close()

	// Integrity is checked by the validator itself. Loads and batches the
	// decompiler cannot read stay in the model so the validator reports them.
	ms, src, err := decompile(ctx, *in, &compiler.Decompiler{
		Lenient: true,
		OnSkip: func(path string, err error) {
			common.Logf("keeping %s unlinked: %v", path, err)
		},
	})
	if err != nil {
		return err
	}

	var metrics *common.Metrics
	if *metricsFlag || *progressFlag {
		metrics = common.NewMetrics()
		metrics.SetTotalBytes(directorySize(*in))
	}
	var stopProgress func()
	if metrics != nil && *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}
	collector := validate.NewCollector()
	collector.SetMediaSet(validate.MediaSetInfo{
		PartNumber: ms.PartNumber(),
		Media:      ms.NumberOfMedia(),
		Version:    mediaSetVersion(src),
	})
	v := &validate.Validator{Metrics: metrics}
	res, err := v.Validate(ctx, ms, src.ReadFile, collector.Add)
	if stopProgress != nil {
		stopProgress()
	}
	if err != nil {
		return err
	}

	if err := collector.WriteDiagnosticsNDJSON(*outDiag); err != nil {
		return fmt.Errorf("write diagnostics: %w", err)
	}
	rep := collector.MakeAcceptance()
	if err := report.SaveAcceptanceJSON(rep, *outAcc); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("PASS=%v, files=%d, checksum failures=%d, integrity failures=%d\n",
		res.Passed, res.Files, res.ChecksumFailures, res.IntegrityFailures)
	if metrics != nil && *metricsFlag {
		snap := metrics.Snapshot()
		fmt.Printf("Metrics: duration=%s files=%d failures=%d processed=%s throughput=%.2f MB/s\n",
			snap.Duration.Round(10*time.Millisecond),
			snap.Files,
			snap.TotalFailures(),
			common.FormatBytes(snap.Bytes),
			snap.ThroughputBytesPerSecond()/1_000_000,
		)
		common.WriteMediaSummary(os.Stdout, snap)
	}
	if !res.Passed {
		return errors.New("media set failed validation")
	}
	return nil
}

func compileCmd(ctx context.Context, args []string) error {
	fs, cfgPath := newFlagSet("compile")
	descPath := fs.String("desc", "", "media set description (YAML)")
	srcDir := fs.String("src", ".", "directory holding the file contents by media set path")
	out := fs.String("out", "", "output directory for the MEDIUM_nnn directories")
	versionFlag := fs.String("version", "", "supplement2 or supplement345 (default from config)")
	loadHeaders := fs.String("load-headers", "", "load header creation policy: none, noneExisting, all")
	batchFiles := fs.String("batch-files", "", "batch file creation policy: none, noneExisting, all")
	auditPath := fs.String("audit", "", "append written files to this JSONL audit log")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *descPath == "" || *out == "" {
		return errors.New("required: --desc, --out")
	}
	cfg, closer, err := setup(*cfgPath, "compile")
	if err != nil {
		return err
	}
	defer closer.Close()

	if *versionFlag != "" {
		if cfg.Version, err = arinc665.ParseSupportedVersion(*versionFlag); err != nil {
			return err
		}
	}
	if fs.Changed("load-headers") {
		if cfg.LoadHeaderPolicy, err = compiler.ParseFileCreationPolicy(*loadHeaders); err != nil {
			return err
		}
	}
	if fs.Changed("batch-files") {
		if cfg.BatchFilePolicy, err = compiler.ParseFileCreationPolicy(*batchFiles); err != nil {
			return err
		}
	}

	desc, err := config.LoadDescription(*descPath)
	if err != nil {
		return err
	}
	ms, err := desc.Build()
	if err != nil {
		return err
	}
	c := cfg.Compiler()
	if *auditPath != "" {
		c.Audit = common.NewAuditLog(*auditPath)
	}
	sink := &compiler.DirSink{Root: *out, SourceDir: *srcDir}
	if err := c.Compile(ctx, ms, sink); err != nil {
		return err
	}
	fmt.Printf("Compiled media set %s (%s) to %s: %d media, %d loads, %d batches\n",
		ms.PartNumber(), cfg.Version, *out, ms.NumberOfMedia(), len(ms.Loads()), len(ms.Batches()))
	return nil
}

func reportCmd(_ context.Context, args []string) error {
	fs, _ := newFlagSet("report")
	accPath := fs.String("acceptance", "", "acceptance_report.json")
	pdfPath := fs.String("pdf", "", "output acceptance report PDF")
	manifestPath := fs.String("manifest", "", "manifest whose digest is printed as QR code")
	mediaSet := fs.String("media-set", "", "media set part number shown on the report (default from the acceptance report)")
	versionFlag := fs.String("version", "", "supplement shown on the report (default from the acceptance report)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *accPath == "" || *pdfPath == "" {
		return errors.New("required: --acceptance, --pdf")
	}
	rep, err := report.LoadAcceptanceJSON(*accPath)
	if err != nil {
		return fmt.Errorf("load acceptance: %w", err)
	}
	meta := report.MetaOf(rep, report.Meta{MediaSet: *mediaSet, Version: *versionFlag})
	if *manifestPath != "" {
		m, err := manifest.Load(*manifestPath)
		if err != nil {
			return fmt.Errorf("load manifest: %w", err)
		}
		if meta.MediaSet == "" {
			meta.MediaSet = m.MediaSet
		}
		if meta.Media == 0 {
			meta.Media = m.Media
		}
		if meta.ManifestDigest, err = m.Digest(); err != nil {
			return err
		}
	}
	if err := report.SaveAcceptancePDF(rep, meta, *pdfPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	fmt.Println("Wrote PDF:", *pdfPath)
	return nil
}

func signaturePath(out, jwsOut string) string {
	if jwsOut != "" {
		return jwsOut
	}
	if ext := filepath.Ext(out); ext != "" {
		return out[:len(out)-len(ext)] + ".jws"
	}
	return out + ".jws"
}

func manifestCmd(_ context.Context, args []string) error {
	fs, cfgPath := newFlagSet("manifest")
	in := fs.String("in", "", "directory holding the MEDIUM_nnn directories")
	out := fs.String("out", "manifest.json", "output json")
	algo := fs.String("algo", "", "digest algorithm: sha256 or blake3 (default from config)")
	sign := fs.Bool("sign", false, "sign manifest (detached JWS over JSON)")
	keyPath := fs.String("key", "", "PEM private key for signing")
	certPath := fs.String("cert", "", "PEM certificate describing signer")
	jwsOut := fs.String("jws-out", "", "output JWS file (defaults to manifest path with .jws)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("required: --in")
	}
	cfg, closer, err := setup(*cfgPath, "manifest")
	if err != nil {
		return err
	}
	defer closer.Close()
	if *algo == "" {
		*algo = cfg.DigestAlgorithm
	}

	m, err := manifest.Build(*in, *algo)
	if err != nil {
		return fmt.Errorf("manifest build: %w", err)
	}
	if *sign {
		key := firstNonEmpty(*keyPath, cfg.ManifestSigning.PrivateKey)
		cert := firstNonEmpty(*certPath, cfg.ManifestSigning.Certificate)
		if key == "" || cert == "" {
			return errors.New("--sign requires --key and --cert")
		}
		keyBytes, err := os.ReadFile(key)
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		certBytes, err := os.ReadFile(cert)
		if err != nil {
			return fmt.Errorf("read cert: %w", err)
		}
		sigPath := signaturePath(*out, *jwsOut)
		if err := m.Sign(keyBytes, certBytes, sigPath); err != nil {
			return fmt.Errorf("manifest sign: %w", err)
		}
		fmt.Println("Wrote signature", sigPath)
	}
	if err := manifest.Save(m, *out); err != nil {
		return fmt.Errorf("manifest save: %w", err)
	}
	common.Logf("manifest %s: %d items (%s)", *out, len(m.Items), m.Algorithm)
	fmt.Println("Wrote", *out)
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func verifySignatureCmd(_ context.Context, args []string) error {
	fs, _ := newFlagSet("verify-signature")
	manifestPath := fs.String("manifest", "", "manifest JSON file")
	jwsPath := fs.String("jws", "", "manifest JWS signature file")
	certPath := fs.String("cert", "", "signer certificate (PEM)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *manifestPath == "" || *jwsPath == "" || *certPath == "" {
		return errors.New("required: --manifest, --jws, --cert")
	}
	m, err := manifest.Load(*manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	certBytes, err := os.ReadFile(*certPath)
	if err != nil {
		return fmt.Errorf("read cert: %w", err)
	}
	if err := m.Verify(*jwsPath, certBytes); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	fmt.Println("Signature OK")
	return nil
}

func partNumberCmd(_ context.Context, args []string) error {
	fs, _ := newFlagSet("partnumber")
	check := fs.String("check", "", "verify the check code of a part number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *check != "" {
		pn, err := arinc665.ParsePartNumber(*check)
		if err != nil {
			return err
		}
		fmt.Printf("%s: manufacturer %s, check code %s, product %s\n", pn, pn.ManufacturerCode, pn.CheckCode(), pn.ProductIdentifier)
		return nil
	}
	if fs.NArg() != 2 {
		return errors.New("required: <manufacturer code> <product identifier> or --check")
	}
	pn, err := arinc665.NewPartNumber(fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	fmt.Println(pn)
	return nil
}
