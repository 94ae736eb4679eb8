package domain

import "testing"

func TestClassifyScanFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     Modality
		found    bool
	}{
		{"patient_t1.nii.gz", ModalityT1, true},
		{"T1.nii", ModalityT1, true},
		{"scan_t1ce.nii.gz", ModalityT1CE, true},
		{"scan_T1_CE.nii.gz", ModalityT1CE, true},
		{"scan_t1-ce.nii.gz", ModalityT1CE, true},
		{"patient_t2.nii.gz", ModalityT2, true},
		{"T2_axial.nii", ModalityT2, true},
		{"flair_volume.nii.gz", ModalityFLAIR, true},
		{"Patient_FLAIR.nii", ModalityFLAIR, true},
		// t10/t20 are slice counts, not modalities.
		{"scan_t10.nii.gz", "", false},
		{"scan_t20.nii.gz", "", false},
		{"scan_t2star.nii.gz", ModalityT2, true},
		{"unrelated.nii.gz", "", false},
		// "ce" anywhere suppresses the plain-T1 match without making it T1CE.
		{"t1_enhanced_ce.nii.gz", "", false},
	}

	for _, tt := range tests {
		got, found := ClassifyScanFilename(tt.filename)
		if found != tt.found || got != tt.want {
			t.Errorf("ClassifyScanFilename(%q) = %q, %v; want %q, %v", tt.filename, got, found, tt.want, tt.found)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []CaseStatus{StatusDone, StatusError, StatusCancelled}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Errorf("expected %s to be terminal", status)
		}
	}
	for _, status := range []CaseStatus{StatusInitializing, StatusProcessing} {
		if status.IsTerminal() {
			t.Errorf("expected %s to not be terminal", status)
		}
	}
}

func TestDetectedScansStableOrder(t *testing.T) {
	bundle := AcceptedBundle{ScanFiles: map[Modality]string{
		ModalityFLAIR: "flair.nii.gz",
		ModalityT1:    "t1.nii.gz",
		ModalityT2:    "t2.nii.gz",
	}}
	got := bundle.DetectedScans()
	want := []string{"T1", "T2", "FLAIR"}
	if len(got) != len(want) {
		t.Fatalf("DetectedScans() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("DetectedScans() = %v, want %v", got, want)
		}
	}
}
