/*
Package sort provides a radix sort for unsigned integer keys that runs as
a pipeline of data-parallel kernels on a device from package device, and
tracks for each sorted key the index it had in the input.

A sort consists of Params.Passes passes, one per digit of Params.Bits
bits, least significant digit first. Each pass runs three stages:

The histogram stage divides the keys into one contiguous partition per
lane, and lets each lane count the digit values of its partition into its
own row of the histogram table. No two lanes write the same entry.

The scan stage computes the exclusive prefix sum of the histogram table
in the order digit, then group, then lane. Because this order visits the
lanes of a digit in the order of their partitions, keys with equal digits
end up in input order, which makes every pass stable, and the sort
correct. The table is scanned in Params.HistoSplit chunks, followed by a
scan of the chunk totals and their addition to each chunk.

The reorder stage scatters each key and its permutation entry to the
offset of its digit and lane, plus its rank among the keys of the same
lane and digit.

The keys are padded with Params.Sentinel up to a multiple of the number
of lanes. Padding keys sort after all real keys, including real keys equal
to the sentinel, because padding only ever occupies the end of the array
and every pass is stable.
*/
package sort
