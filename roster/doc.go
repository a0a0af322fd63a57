// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package roster builds the company reference table used as extraction hints.
//
// A roster is the inner join of an index composition table (rank, symbol,
// company, weight, price) with a stock performance table (market cap,
// revenue, income, EPS, free cash flow) on the upper-cased ticker symbol.
// Either input may be a CSV file, whose delimiter is sniffed, or an XLSX
// workbook. Column headers are matched loosely so exports from different
// data vendors load without mapping files. Composition files write decimals
// with a comma.
//
// The joined roster is saved as a master CSV and loaded again by the extract
// command, which attaches the matching company to each filing whose file
// name contains its symbol.
package roster
