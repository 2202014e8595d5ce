// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package kernel registers environments as Jupyter kernels.
//
// A kernel is a directory <kernels>/<name>/ holding kernel.json, the
// file Jupyter reads to list and launch kernels. Registering writes
// that file (the same file `python -m ipykernel install` writes) with
// the environment's interpreter in argv, the spec's display name, and
// the spec's env_vars. Unregistering removes the directory.
//
// Kernels this package writes carry a metadata.wrangler block naming
// the environment. Only such kernels are ever treated as orphans:
// [Registry.Orphans] reports managed kernels whose interpreter no
// longer exists, left behind when an environment was deleted without
// unregistering. Kernels installed by other tools are never touched.
//
// kernel.json files are parsed leniently (comments and trailing commas
// are accepted) since users do edit them by hand.
package kernel
