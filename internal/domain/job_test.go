package domain

import "testing"

func TestCreateJobRequestValidate(t *testing.T) {
	valid := CreateJobRequest{
		SKU:        "SER-0042",
		EAN:        "5901234123457",
		SourceType: SourceTypeS3Presigned,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	invalid := CreateJobRequest{}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected validation error for empty request")
	}

	missingObjectKey := CreateJobRequest{
		SKU:        "SER-0042",
		SourceType: SourceTypeLocalFile,
	}
	if err := missingObjectKey.Validate(); err == nil {
		t.Fatal("expected validation error for local_file object_key")
	}

	unsupportedSourceType := CreateJobRequest{
		SKU:        "SER-0042",
		SourceType: "http_url",
	}
	if err := unsupportedSourceType.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported source_type")
	}

	badEAN := valid
	badEAN.EAN = "5901234123458"
	if err := badEAN.Validate(); err == nil {
		t.Fatal("expected validation error for ean check digit")
	}
}

func TestNormalizationOptionsValidate(t *testing.T) {
	cases := map[string]NormalizationOptions{
		"negative width":   {TargetWidth: -1, TargetHeight: 100},
		"width only":       {TargetWidth: 1200},
		"quality too high": {Quality: 101},
		"negative min":     {MinWidth: -5},
		"width too large":  {TargetWidth: 65536, TargetHeight: 10},
		"height too large": {TargetWidth: 10, TargetHeight: 1 << 31},
	}
	for name, opts := range cases {
		if err := opts.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	for _, ok := range []NormalizationOptions{
		{TargetWidth: 1200, TargetHeight: 1200, Quality: 90, EnforceQualityGate: true},
		{TargetWidth: 65535, TargetHeight: 1},
	} {
		if err := ok.Validate(); err != nil {
			t.Fatalf("expected valid options, got %v", err)
		}
	}
}

func TestValidateEAN(t *testing.T) {
	for _, ean := range []string{"", "96385074", "036000291452", "4006381333931", "10614141000019"} {
		if err := validateEAN(ean); err != nil {
			t.Fatalf("ean %q: unexpected error %v", ean, err)
		}
	}
	for _, ean := range []string{"123", "400638133393A", "4006381333932"} {
		if err := validateEAN(ean); err == nil {
			t.Fatalf("ean %q: expected error", ean)
		}
	}
}

func TestJobFinished(t *testing.T) {
	if (Job{Status: JobStatusQueued}).Finished() {
		t.Fatal("queued job must not be finished")
	}
	if !(Job{Status: JobStatusRejected}).Finished() {
		t.Fatal("rejected job must be finished")
	}
}
