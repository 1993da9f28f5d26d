// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import "github.com/periogt/periogt/lib/digest"

// Well-known names under the staging root.
const (
	PretrainedDir   = "pretrained_ckpt"
	FinetunedDir    = "finetuned_ckpt"
	IndexFile       = "index.json"
	LabelStatsFile  = "label_stats.json"
	ScalerFile      = "descriptor_scaler.pkl"
	CheckpointExt   = ".pth"
	CheckpointStem  = "best_model"
	zenodoRecordURL = "https://zenodo.org/records/17035498/files/"
)

// Default returns the built-in catalog. Each call returns a fresh
// value the caller may modify.
func Default() *Catalog {
	return &Catalog{
		Artifacts: []Descriptor{
			{
				Name:   "pretrained_ckpt.zip",
				URL:    zenodoRecordURL + "pretrained_ckpt.zip?download=1",
				Digest: digest.MustParse("md5:7adbcfc4da134692e9a2965270321662"),
			},
			{
				Name:   "finetuned_ckpt.zip",
				URL:    zenodoRecordURL + "finetuned_ckpt.zip?download=1",
				Digest: digest.MustParse("md5:f285c724142aa2c8919f6a736f6e6093"),
			},
		},
		Properties: map[string]PropertyMetadata{
			"eat":      {Label: "Atomization energy", Units: "eV"},
			"eps":      {Label: "Dielectric constant (ε)", Units: ""},
			"density":  {Label: "Density", Units: "g/cm³"},
			"tg":       {Label: "Glass transition temperature (Tg)", Units: "K"},
			"nc":       {Label: "Refractive index (nc)", Units: ""},
			"eea":      {Label: "Electron affinity", Units: "eV"},
			"eip":      {Label: "Ionization potential", Units: "eV"},
			"xi":       {Label: "Chi parameter", Units: ""},
			"cp":       {Label: "Heat capacity (Cp)", Units: "J/(mol·K)"},
			"e_amorph": {Label: "Young's modulus (amorphous)", Units: "GPa"},
			"egc":      {Label: "Band gap (chain)", Units: "eV"},
			"egb":      {Label: "Band gap (bulk)", Units: "eV"},
		},
		Required: []Required{
			{Key: "index_json", Path: IndexFile},
			{Key: "label_stats_json", Path: LabelStatsFile},
			{Key: "descriptor_scaler_pkl", Path: ScalerFile},
			{Key: "pretrained_ckpt", Path: PretrainedDir, Directory: true},
			{Key: "finetuned_ckpt", Path: FinetunedDir, Directory: true},
		},
	}
}
