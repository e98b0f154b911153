package cli

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sigpress/pdfsigner/config"
	"github.com/sigpress/pdfsigner/revocation"
	"github.com/sigpress/pdfsigner/sign"
)

var (
	infoName, infoLocation, infoReason, infoContact string
	tsaURL, standardName, fieldName                 string
	certLevel                                       int
	estimatedSize                                   int64
)

// ParseStandard maps the -standard flag value onto sign.Standard.
func ParseStandard(s string) (sign.Standard, error) {
	switch s {
	case "CMS":
		return sign.CMS, nil
	case "CAdES":
		return sign.CAdES, nil
	default:
		return 0, fmt.Errorf("invalid standard value %q (want CMS or CAdES)", s)
	}
}

func SignCommand() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	signFlags := flag.NewFlagSet("sign", flag.ExitOnError)
	signFlags.StringVar(&infoName, "name", cfg.Info.Name, "Name of the signatory")
	signFlags.StringVar(&infoLocation, "location", cfg.Info.Location, "Location of the signatory")
	signFlags.StringVar(&infoReason, "reason", cfg.Info.Reason, "Reason for signing")
	signFlags.StringVar(&infoContact, "contact", cfg.Info.ContactInfo, "Contact information for signatory")
	signFlags.StringVar(&tsaURL, "tsa", cfg.TSA.URL, "URL for Time-Stamp Authority (empty to skip timestamping)")
	signFlags.StringVar(&standardName, "standard", cfg.Standard, "Container standard (CMS, CAdES)")
	signFlags.StringVar(&fieldName, "field", "", "Signature field name (empty picks the next SignatureN)")
	signFlags.IntVar(&certLevel, "certify", cfg.CertificationLevel, "Certification level (0=approval, 1=no changes, 2=form filling, 3=form filling and annotations)")
	signFlags.Int64Var(&estimatedSize, "estimated", cfg.EstimatedSize, "Reserved signature size in bytes (0 uses the built-in formula)")

	signFlags.Usage = func() {
		fmt.Printf("Usage: %s sign [options] <input.pdf> <output.pdf> <certificate.crt> <private_key.key> [chain.crt]\n\n", os.Args[0])
		fmt.Println("Sign a PDF file with a digital signature")
		fmt.Println("\nOptions:")
		signFlags.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Printf("  %s sign -name \"John Doe\" input.pdf output.pdf cert.crt key.key\n", os.Args[0])
		fmt.Printf("  %s sign -standard CAdES -tsa https://freetsa.org/tsr input.pdf output.pdf cert.crt key.key chain.crt\n", os.Args[0])
	}

	if err := signFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse sign flags: %v", err)
	}
	if len(signFlags.Args()) < 4 {
		signFlags.Usage()
		osExit(1)
		return
	}

	args := signFlags.Args()
	chainPath := ""
	if len(args) > 4 {
		chainPath = args[4]
	}
	if err := SignPDF(args[0], args[1], args[2], args[3], chainPath); err != nil {
		log.Fatal(err)
	}
}

// SignPDF signs input into output using the PEM certificate and key files,
// honoring the flag values the sign command parsed.
func SignPDF(input, output, certPath, keyPath, chainPath string) error {
	standard, err := ParseStandard(standardName)
	if err != nil {
		return err
	}

	cert, err := loadCertificate(certPath)
	if err != nil {
		return err
	}
	signer, err := loadPrivateKey(keyPath)
	if err != nil {
		return err
	}
	if err := sign.ValidateSignerCertificateMatch(signer, cert); err != nil {
		return err
	}

	chain := []*x509.Certificate{cert}
	if chainPath != "" {
		more, err := loadChain(chainPath)
		if err != nil {
			return err
		}
		chain = append(chain, more...)
	}

	opts := sign.Options{
		Signer:             sign.NewPrivateKeySignature(signer, crypto.SHA256),
		CertChain:          chain,
		Standard:           standard,
		CertificationLevel: sign.CertificationLevel(certLevel),
		FieldName:          fieldName,
		EstimatedSize:      estimatedSize,
		Info: sign.SignatureInfo{
			Name:        infoName,
			Location:    infoLocation,
			Reason:      infoReason,
			ContactInfo: infoContact,
			Date:        time.Now(),
		},
		MaxRetries: 2,
		Logger:     log.New(os.Stderr, "", log.LstdFlags),
	}
	if tsaURL != "" {
		opts.TsaClient = revocation.NewTsaClient(tsaURL, crypto.SHA256)
	}

	return signFile(input, output, opts)
}

func TimestampCommand() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	tsFlags := flag.NewFlagSet("timestamp", flag.ExitOnError)
	tsFlags.StringVar(&tsaURL, "tsa", cfg.TSA.URL, "URL for Time-Stamp Authority")
	tsFlags.StringVar(&fieldName, "field", "", "Signature field name (empty picks the next SignatureN)")
	tsFlags.Int64Var(&estimatedSize, "estimated", cfg.EstimatedSize, "Reserved token size in bytes (0 uses the default base plus the TSA's token estimate)")

	tsFlags.Usage = func() {
		fmt.Printf("Usage: %s timestamp [options] <input.pdf> <output.pdf>\n\n", os.Args[0])
		fmt.Println("Add a document timestamp (/DocTimeStamp) to a PDF file")
		fmt.Println("\nOptions:")
		tsFlags.PrintDefaults()
	}

	if err := tsFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse timestamp flags: %v", err)
	}
	if len(tsFlags.Args()) < 2 {
		tsFlags.Usage()
		osExit(1)
		return
	}
	if tsaURL == "" {
		log.Fatal("timestamp requires a TSA URL (-tsa or PDFSIGNER_TSA_URL)")
	}

	opts := sign.Options{
		IsTimestamp:   true,
		TsaClient:     revocation.NewTsaClient(tsaURL, crypto.SHA256),
		FieldName:     fieldName,
		EstimatedSize: estimatedSize,
		Logger:        log.New(os.Stderr, "", log.LstdFlags),
	}
	if err := signFile(tsFlags.Arg(0), tsFlags.Arg(1), opts); err != nil {
		log.Fatal(err)
	}
}

// signFile runs a configured sign operation from one file path to another.
func signFile(input, output string, opts sign.Options) error {
	in, err := os.Open(input)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.Create(output)
	if err != nil {
		return err
	}
	opts.Output = out

	signer, err := sign.Open(in, info.Size(), opts)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(output)
		return err
	}

	if _, err := signer.Sign(); err != nil {
		_ = os.Remove(output)
		return err
	}
	return nil
}

func loadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	return x509.ParseCertificate(block.Bytes)
}

func loadChain(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var chain []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return chain, nil
}

func loadPrivateKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("key in %s does not support signing", path)
		}
		return signer, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unsupported private key format in %s", path)
}
